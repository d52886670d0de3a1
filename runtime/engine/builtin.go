package engine

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Param declares one argument of a builtin's contract.
type Param struct {
	Name        string
	Description string
	Required    bool
}

func req(name string, description ...string) Param {
	return Param{Name: name, Description: first(description), Required: true}
}

func opt(name string, description ...string) Param {
	return Param{Name: name, Description: first(description)}
}

func first(ss []string) string {
	if len(ss) > 0 {
		return ss[0]
	}
	return ""
}

// imgParam is the conventional first parameter of image-transforming
// builtins.
var imgParam = Param{Name: "img", Description: "image", Required: true}

// CallContext gives a builtin implementation access to the evaluator
// driving the call.
type CallContext struct {
	Evaluator *Evaluator
	Function  string
	Env       *Environment
}

// BuiltinImpl computes a builtin's result from named arguments. Validation
// has already run when it is called.
type BuiltinImpl func(ctx *CallContext, args map[string]any) (any, error)

// Builtin couples a declared argument contract with its implementation.
// Spread builtins take any number of positional arguments, collected under
// the single "list" parameter.
type Builtin struct {
	Name   string
	Params []Param
	Spread bool
	Impl   BuiltinImpl
}

// ValidateNamed checks a named argument map against the contract: every
// required parameter present, no unknown names.
func (b *Builtin) ValidateNamed(args map[string]any) error {
	if b.Spread {
		return nil
	}
	var missing []string
	for _, p := range b.Params {
		if p.Required {
			if _, ok := args[p.Name]; !ok {
				missing = append(missing, p.Name)
			}
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &ValidationError{
			Function: b.Name,
			Reason:   "missing required arguments: " + strings.Join(missing, ", "),
		}
	}
	var unknown []string
	for name := range args {
		if !b.hasParam(name) {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return &ValidationError{
			Function: b.Name,
			Reason:   "unknown arguments: " + strings.Join(unknown, ", "),
		}
	}
	return nil
}

// MapPositional maps positional arguments onto parameter names in contract
// order. The arity error spells out the full contract.
func (b *Builtin) MapPositional(args []any) (map[string]any, error) {
	if b.Spread {
		return map[string]any{"list": args}, nil
	}
	minArgs := 0
	for _, p := range b.Params {
		if p.Required {
			minArgs++
		}
	}
	if len(args) < minArgs || len(args) > len(b.Params) {
		return nil, &ValidationError{Function: b.Name, Reason: b.arityMessage(minArgs)}
	}
	named := make(map[string]any, len(args))
	for i, v := range args {
		named[b.Params[i].Name] = v
	}
	return named, nil
}

func (b *Builtin) arityMessage(minArgs int) string {
	var sb strings.Builder
	if minArgs == len(b.Params) {
		fmt.Fprintf(&sb, "expects %d argument", len(b.Params))
		if len(b.Params) != 1 {
			sb.WriteByte('s')
		}
	} else {
		fmt.Fprintf(&sb, "expects between %d and %d arguments", minArgs, len(b.Params))
	}
	sb.WriteString(": ")
	for i, p := range b.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		if !p.Required {
			sb.WriteByte('[')
		}
		sb.WriteString(p.Name)
		if p.Description != "" {
			sb.WriteString(" (" + p.Description + ")")
		}
		if !p.Required {
			sb.WriteByte(']')
		}
	}
	return sb.String()
}

func (b *Builtin) hasParam(name string) bool {
	for _, p := range b.Params {
		if p.Name == name {
			return true
		}
	}
	return false
}

// Registry holds the builtin function table. The host application may
// register additional builtins (heavy image algorithms live outside this
// module) before evaluation starts; registration and lookup are safe for
// concurrent use.
type Registry struct {
	mu       sync.RWMutex
	builtins map[string]*Builtin
}

// NewRegistry creates a registry pre-populated with the standard builtins.
func NewRegistry() *Registry {
	r := &Registry{builtins: map[string]*Builtin{}}
	registerStandard(r)
	return r
}

// Register adds or replaces a builtin. Names are case-insensitive.
func (r *Registry) Register(b *Builtin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builtins[strings.ToLower(b.Name)] = b
}

// Lookup finds a builtin by name.
func (r *Registry) Lookup(name string) (*Builtin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.builtins[strings.ToLower(name)]
	return b, ok
}

// Names returns the registered builtin names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.builtins))
	for name := range r.builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
