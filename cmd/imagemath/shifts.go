package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/imagemath-lang/imagemath"
	"github.com/imagemath-lang/imagemath/runtime/analysis"
	"github.com/imagemath-lang/imagemath/runtime/parser"
)

func shiftsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shifts <script.math>",
		Short: "List the pixel shifts a script requires",
		Args:  cobra.ExactArgs(1),
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
			shifts := imagemath.CollectShifts(script, defaultParameterValues(source))
			for _, s := range shifts {
				fmt.Fprintf(cmd.OutOrStdout(), "%g\n", s)
			}
			return nil
		},
	}
	return cmd
}

// defaultParameterValues seeds declared parameters with their defaults so
// that shift expressions referencing them resolve during collection.
func defaultParameterValues(source string) map[string]any {
	values := map[string]any{}
	for _, p := range analysis.ExtractParameters(source).Parameters {
		switch t := p.(type) {
		case analysis.NumberParameter:
			values[t.ParameterName()] = t.Default
		case analysis.StringParameter:
			values[t.ParameterName()] = t.Default
		case analysis.ChoiceParameter:
			values[t.ParameterName()] = t.Default
		}
	}
	return values
}
