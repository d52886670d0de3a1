package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/imagemath-lang/imagemath"
	"github.com/imagemath-lang/imagemath/core/image"
	"github.com/imagemath-lang/imagemath/runtime/engine"
	"github.com/imagemath-lang/imagemath/runtime/parser"
)

func evalCommand() *cobra.Command {
	var (
		paramFlags []string
		paramsFile string
		width      int
		height     int
	)
	cmd := &cobra.Command{
		Use:   "eval <script.math>",
		Short: "Evaluate a script against synthetic flat input images",
		Long: `Evaluate runs the standard sections of a script. Input images are
synthetic flat frames, standing in for the video processing pipeline, so the
command is mainly useful to exercise script logic outside the application.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			source := string(data)
			script, errs := parser.ParseAndInlineIncludes(source, parser.WithIncludeDir(filepath.Dir(path)))
			if len(errs) > 0 {
				return fmt.Errorf("%s: %s", path, errs[0].Error())
			}

			params := defaultParameterValues(source)
			if paramsFile != "" {
				if err := loadParamsFile(paramsFile, params); err != nil {
					return err
				}
			}
			for _, flag := range paramFlags {
				name, value, ok := strings.Cut(flag, "=")
				if !ok {
					return fmt.Errorf("invalid --param %q, expected name=value", flag)
				}
				params[name] = parseParamValue(value)
			}

			supplier := func(shift float64) (*image.Image, error) {
				return flatImage(width, height), nil
			}
			result := imagemath.Evaluate(script, nil, params, engine.WithImageSupplier(supplier))

			for _, invalid := range result.Invalid {
				fmt.Fprintln(cmd.ErrOrStderr(), "error:", invalid.Error())
			}
			for _, name := range result.OutputOrder {
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", name, describeValue(result.Outputs[name]))
			}
			if len(result.Invalid) > 0 {
				return fmt.Errorf("%d statements failed", len(result.Invalid))
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&paramFlags, "param", "p", nil, "parameter override, name=value (repeatable)")
	cmd.Flags().StringVar(&paramsFile, "params", "", "YAML file with parameter values")
	cmd.Flags().IntVar(&width, "width", 64, "synthetic input image width")
	cmd.Flags().IntVar(&height, "height", 64, "synthetic input image height")
	return cmd
}

func loadParamsFile(path string, into map[string]any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	loaded := map[string]any{}
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	for name, v := range loaded {
		switch n := v.(type) {
		case int:
			into[name] = float64(n)
		case uint64:
			into[name] = float64(n)
		case float64, string, bool:
			into[name] = n
		default:
			return fmt.Errorf("parameter %s: unsupported value type %T", name, v)
		}
	}
	return nil
}

func parseParamValue(value string) any {
	if n, err := strconv.ParseFloat(value, 64); err == nil {
		return n
	}
	return value
}

// flatImage builds a mid-gray frame.
func flatImage(width, height int) *image.Image {
	img := image.New(width, height)
	for i := range img.Data {
		img.Data[i] = image.MaxValue / 2
	}
	return img
}

func describeValue(v any) string {
	switch t := v.(type) {
	case *image.Image:
		lo, hi := t.MinMax()
		return fmt.Sprintf("image %dx%d, range [%g, %g]", t.Width, t.Height, lo, hi)
	case []any:
		parts := make([]string, len(t))
		for i, item := range t {
			parts[i] = describeValue(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case string:
		return strconv.Quote(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
