package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/imagemath-lang/imagemath"
	"github.com/imagemath-lang/imagemath/runtime/analysis"
)

func paramsCommand() *cobra.Command {
	var lang string
	cmd := &cobra.Command{
		Use:   "params <script.math>",
		Short: "Show a script's declared parameters and metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := analysis.ExtractParametersFromFile(args[0])
			if err != nil {
				return err
			}
			printMetadata(cmd, result, lang)
			return nil
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "en", "language for localized names")
	return cmd
}

func printMetadata(cmd *cobra.Command, result *analysis.ParameterExtractionResult, lang string) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "title:", result.GetDisplayTitle(lang))
	if desc := result.GetDisplayDescription(lang); desc != "" {
		fmt.Fprintln(out, "description:", desc)
	}
	if result.Author != "" {
		fmt.Fprintln(out, "author:", result.Author)
	}
	if result.Version != "" {
		fmt.Fprintln(out, "version:", result.Version)
	}
	if result.RequiredVersion != "" {
		fmt.Fprintf(out, "requires: %s (engine %s, supported: %v)\n",
			result.RequiredVersion, imagemath.Version, result.IsVersionSupported(imagemath.Version))
	}
	for _, p := range result.Parameters {
		fmt.Fprintf(out, "parameter %s (%s): %s\n", p.ParameterName(), p.ParameterType(), describeParameter(p))
	}
	var outputKeys []string
	for key := range result.Outputs {
		outputKeys = append(outputKeys, key)
	}
	sort.Strings(outputKeys)
	for _, key := range outputKeys {
		fmt.Fprintf(out, "output %s: %s\n", key, result.Outputs[key].GetDisplayTitle(lang))
	}
}

func describeParameter(p analysis.Parameter) string {
	switch t := p.(type) {
	case analysis.NumberParameter:
		desc := fmt.Sprintf("default %g", t.Default)
		if t.Min != nil {
			desc += fmt.Sprintf(", min %g", *t.Min)
		}
		if t.Max != nil {
			desc += fmt.Sprintf(", max %g", *t.Max)
		}
		return desc
	case analysis.StringParameter:
		return fmt.Sprintf("default %q", t.Default)
	case analysis.ChoiceParameter:
		return fmt.Sprintf("default %q, choices %v", t.Default, t.Choices)
	default:
		return ""
	}
}
