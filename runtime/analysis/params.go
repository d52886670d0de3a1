// Package analysis provides read-only static analyses over parsed scripts:
// parameter and metadata extraction for UI surfaces, and version gating.
// Nothing in this package evaluates expressions or touches image data, so
// every analysis terminates even on scripts that would fail at runtime.
package analysis

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/imagemath-lang/imagemath/core/ast"
	"github.com/imagemath-lang/imagemath/runtime/parser"
)

// ParameterType classifies a declared script parameter.
type ParameterType string

const (
	NumberType ParameterType = "number"
	StringType ParameterType = "string"
	ChoiceType ParameterType = "choice"
)

// Parameter is a UI-facing parameter declared at the top level of a script.
type Parameter interface {
	ParameterName() string
	ParameterType() ParameterType
	// DisplayName resolves the localized name, falling back to the
	// parameter name itself.
	DisplayName(language string) string
	// DisplayDescription resolves the localized description, or "".
	DisplayDescription(language string) string
}

type parameterBase struct {
	Name         string
	Names        map[string]string
	Descriptions map[string]string
}

func (p parameterBase) ParameterName() string { return p.Name }

func (p parameterBase) DisplayName(language string) string {
	return localized(p.Names, language, p.Name)
}

func (p parameterBase) DisplayDescription(language string) string {
	return localized(p.Descriptions, language, "")
}

// NumberParameter is a numeric parameter with optional bounds. Min and Max
// are nil when the script declares no bound.
type NumberParameter struct {
	parameterBase
	Default  float64
	Min, Max *float64
}

func (p NumberParameter) ParameterType() ParameterType { return NumberType }

// StringParameter is a free-form text parameter.
type StringParameter struct {
	parameterBase
	Default string
}

func (p StringParameter) ParameterType() ParameterType { return StringType }

// ChoiceParameter is a closed-set parameter. The default is the declared one
// or the first choice.
type ChoiceParameter struct {
	parameterBase
	Default string
	Choices []string
}

func (p ChoiceParameter) ParameterType() ParameterType { return ChoiceType }

// OutputMetadata carries the localized display title and description of a
// declared script output.
type OutputMetadata struct {
	Key         string
	Title       map[string]string
	Description map[string]string
}

// GetDisplayTitle resolves the output title for the language, falling back
// to the output key.
func (o OutputMetadata) GetDisplayTitle(language string) string {
	return localized(o.Title, language, o.Key)
}

// GetDisplayDescription resolves the output description, or "".
func (o OutputMetadata) GetDisplayDescription(language string) string {
	return localized(o.Description, language, "")
}

// ParameterExtractionResult aggregates everything extractable from a script
// without executing it. It is built once per script text and read-only
// afterwards.
type ParameterExtractionResult struct {
	Parameters           []Parameter
	HasParametersSection bool
	Title                map[string]string
	Description          map[string]string
	Outputs              map[string]OutputMetadata
	ScriptFileName       string
	RequiredVersion      string
	Author               string
	Version              string
}

// GetDisplayTitle resolves the script title for the language, falling back
// to the script file name.
func (r *ParameterExtractionResult) GetDisplayTitle(language string) string {
	return localized(r.Title, language, r.ScriptFileName)
}

// GetDisplayDescription resolves the script description, or "".
func (r *ParameterExtractionResult) GetDisplayDescription(language string) string {
	return localized(r.Description, language, "")
}

// IsVersionSupported reports whether the engine version satisfies the
// script's requires declaration. Scripts without one are always supported.
func (r *ParameterExtractionResult) IsVersionSupported(engineVersion string) bool {
	return IsVersionSupported(r.RequiredVersion, engineVersion)
}

// localized implements the display fallback chain: requested language,
// then "default", then "en", then any entry, then the supplied fallback.
func localized(values map[string]string, language, fallback string) string {
	if len(values) == 0 {
		return fallback
	}
	for _, key := range []string{language, "default", "en"} {
		if v, ok := values[key]; ok {
			return v
		}
	}
	for _, v := range values {
		return v
	}
	return fallback
}

// ExtractParametersFromFile reads and analyzes a script file.
func ExtractParametersFromFile(path string) (*ParameterExtractionResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	script, _ := parser.ParseAndInlineIncludes(string(data), parser.WithIncludeDir(filepath.Dir(path)))
	return ExtractParametersFromAST(script, filepath.Base(path)), nil
}

// ExtractParameters analyzes script source text. Parse errors do not abort
// extraction: whatever declarations survived fault-tolerant parsing are
// still reported.
func ExtractParameters(source string) *ParameterExtractionResult {
	script, _ := parser.ParseAndInlineIncludes(source)
	return ExtractParametersFromAST(script, "unknown")
}

// ExtractParametersFromAST walks an already parsed script.
func ExtractParametersFromAST(script *ast.Script, fileName string) *ParameterExtractionResult {
	result := &ParameterExtractionResult{
		Title:          map[string]string{},
		Description:    map[string]string{},
		Outputs:        map[string]OutputMetadata{},
		ScriptFileName: fileName,
	}

	for _, block := range script.MetaBlocks() {
		for _, prop := range block.Object.Properties {
			switch prop.Name {
			case "title", "name":
				mergeLocalized(result.Title, prop)
			case "description":
				mergeLocalized(result.Description, prop)
			case "requires":
				if v, ok := propertyString(prop); ok {
					result.RequiredVersion = v
				}
			case "author":
				if v, ok := propertyString(prop); ok {
					result.Author = v
				}
			case "version":
				if v, ok := propertyString(prop); ok {
					result.Version = v
				}
			case "outputs":
				if prop.Object != nil {
					extractOutputs(result.Outputs, prop.Object)
				}
			}
		}
	}

	defs := script.ParameterDefs()
	if len(defs) > 0 {
		result.HasParametersSection = true
		for _, def := range defs {
			if param := extractParameter(def); param != nil {
				result.Parameters = append(result.Parameters, param)
			}
		}
	}
	return result
}

// extractParameter converts one top-level declaration. Declarations without
// a type, or with an unknown type, are dropped without error.
func extractParameter(def *ast.ParameterDef) Parameter {
	obj := def.Object
	if obj == nil {
		return nil
	}
	typeName, ok := obj.StringProperty("type")
	if !ok {
		return nil
	}

	base := parameterBase{
		Name:         def.Name,
		Names:        extractLocalized(obj, "name"),
		Descriptions: extractLocalized(obj, "description"),
	}

	switch ParameterType(strings.ToLower(typeName)) {
	case NumberType:
		param := NumberParameter{parameterBase: base}
		if v, ok := obj.NumberProperty("default"); ok {
			param.Default = v
		}
		if v, ok := obj.NumberProperty("min"); ok {
			param.Min = &v
		}
		if v, ok := obj.NumberProperty("max"); ok {
			param.Max = &v
		}
		return param
	case StringType:
		param := StringParameter{parameterBase: base}
		if v, ok := obj.StringProperty("default"); ok {
			param.Default = v
		}
		return param
	case ChoiceType:
		param := ChoiceParameter{parameterBase: base}
		if raw, ok := obj.StringProperty("choices"); ok && raw != "" {
			for _, c := range strings.Split(raw, ",") {
				param.Choices = append(param.Choices, strings.TrimSpace(c))
			}
		}
		if v, ok := obj.StringProperty("default"); ok {
			param.Default = v
		} else if len(param.Choices) > 0 {
			param.Default = param.Choices[0]
		}
		return param
	default:
		return nil
	}
}

// extractLocalized reads name { en: "..." } style nested objects; a direct
// scalar value maps to the "default" language.
func extractLocalized(obj *ast.ParameterObject, baseName string) map[string]string {
	result := map[string]string{}
	for _, prop := range obj.Properties {
		if prop.Name != baseName {
			continue
		}
		mergeLocalized(result, prop)
	}
	return result
}

func mergeLocalized(into map[string]string, prop *ast.ParameterProperty) {
	if prop.Object != nil {
		for _, langProp := range prop.Object.Properties {
			if v, ok := propertyString(langProp); ok {
				into[langProp.Name] = v
			}
		}
		return
	}
	if v, ok := propertyString(prop); ok {
		into["default"] = v
	}
}

func extractOutputs(into map[string]OutputMetadata, obj *ast.ParameterObject) {
	for _, prop := range obj.Properties {
		if prop.Object == nil {
			continue
		}
		meta := OutputMetadata{
			Key:         prop.Name,
			Title:       extractLocalized(prop.Object, "title"),
			Description: extractLocalized(prop.Object, "description"),
		}
		into[prop.Name] = meta
	}
}

func propertyString(prop *ast.ParameterProperty) (string, bool) {
	if prop.Value == nil {
		return "", false
	}
	switch v := prop.Value.(type) {
	case *ast.StringLiteral:
		return v.Value, true
	case *ast.NumericalLiteral:
		return v.String(), true
	case *ast.VariableExpression:
		return v.Name, true
	}
	return "", false
}
