package main

import (
	"github.com/spf13/cobra"

	"blueprintvision/internal/isa"
	"blueprintvision/internal/util/jsonutil"
)

var tagValidate bool

var tagCmd = &cobra.Command{
	Use:   "tag <tag>...",
	Short: "Decode ISA-5.1 instrument tags",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var v any = isa.ParseAll(args)
		if tagValidate {
			v = map[string]any{
				"tags":       isa.ValidateAll(args),
				"duplicates": isa.FindDuplicates(args),
			}
		}
		b, err := jsonutil.MarshalNoEscapeIndent(v, "", "  ")
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(append(b, '\n'))
		return err
	},
}

func init() {
	tagCmd.Flags().BoolVar(&tagValidate, "validate", false, "apply ISA-5.1 logic checks and report duplicates")
}
