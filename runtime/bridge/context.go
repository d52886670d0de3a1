package bridge

import (
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/zeebo/xxh3"
)

// Context is a persistent guest interpreter state: variables written by
// guest code survive across calls, and compiled programs are cached by
// source hash. A Context is not safe for concurrent use; one logical script
// run owns it at a time.
type Context struct {
	mu       sync.Mutex
	vars     map[string]any
	programs map[uint64]*vm.Program
}

// NewContext creates an empty guest context.
func NewContext() *Context {
	return &Context{
		vars:     map[string]any{},
		programs: map[uint64]*vm.Program{},
	}
}

// Execute compiles (or reuses) and runs the guest source against the host
// variable map. The guest sees the host variables converted per the bridge
// rules, plus:
//
//	get(name)         read a context variable
//	set(name, value)  write a context variable, persists across calls
//	image(rows)       build an image from nested numeric lists
//
// Guest failures come back as *Error.
func (c *Context) Execute(source string, hostVars map[string]any) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	program, err := c.compile(source)
	if err != nil {
		return nil, wrapError(err)
	}

	env := make(map[string]any, len(hostVars)+len(c.vars)+3)
	for name, v := range c.vars {
		env[name] = v
	}
	for name, v := range hostVars {
		env[name] = toGuest(v)
	}
	env["get"] = func(name string) any {
		return c.vars[name]
	}
	env["set"] = func(name string, value any) any {
		c.vars[name] = value
		return value
	}
	env["image"] = func(rows any) (*ImageProxy, error) {
		return buildImage(rows)
	}

	result, err := expr.Run(program, env)
	if err != nil {
		return nil, wrapError(err)
	}
	converted, err := fromGuest(result)
	if err != nil {
		return nil, wrapError(err)
	}
	return converted, nil
}

// SetVariable writes a guest-visible variable from the host side.
func (c *Context) SetVariable(name string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vars[name] = toGuest(value)
}

// GetVariable reads a guest variable from the host side.
func (c *Context) GetVariable(name string) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.vars[name]
	if !ok {
		return nil, nil
	}
	return fromGuest(v)
}

// compile caches programs by source content hash. Programs compile without
// a typed environment so one program runs against any variable map.
func (c *Context) compile(source string) (*vm.Program, error) {
	key := xxh3.HashString(source)
	if program, ok := c.programs[key]; ok {
		return program, nil
	}
	program, err := expr.Compile(source, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}
	c.programs[key] = program
	return program, nil
}

// Registry hands out Contexts keyed by run identifier with get-or-create
// semantics: the same key always yields the same Context until it is
// disposed. The registry is injected by the caller instead of living in
// process-global state, making lifecycle explicit.
type Registry struct {
	mu       sync.Mutex
	contexts map[string]*Context
}

// NewRegistry creates an empty context registry.
func NewRegistry() *Registry {
	return &Registry{contexts: map[string]*Context{}}
}

// GetOrCreate returns the context for the run, creating it on first use.
func (r *Registry) GetOrCreate(runID string) *Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	ctx, ok := r.contexts[runID]
	if !ok {
		ctx = NewContext()
		r.contexts[runID] = ctx
	}
	return ctx
}

// Dispose drops the context for a finished run.
func (r *Registry) Dispose(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.contexts, runID)
}
