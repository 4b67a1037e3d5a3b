package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/obiente/translate/w2vfeat/internal/config"
	"github.com/obiente/translate/w2vfeat/internal/extract"
)

func newVerifyCommand() *cobra.Command {
	var saveDir, split, format string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check that a split's feature array matches its lengths file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := extract.Verify(saveDir, split, format)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "files=%d rows=%d dim=%d\n", rep.LengthLines, rep.ArrayRows, rep.Dim)
			return nil
		},
	}
	cmd.Flags().StringVar(&saveDir, "save-dir", "", "directory holding the extracted split")
	cmd.Flags().StringVar(&split, "split", "", "split name")
	cmd.Flags().StringVar(&format, "format", config.FormatNPY, "feature array format: npy or arrow")
	_ = cmd.MarkFlagRequired("save-dir")
	_ = cmd.MarkFlagRequired("split")
	return cmd
}
