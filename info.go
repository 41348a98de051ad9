package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show supported formats, engines and configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, _, conv, err := a.setup(cmd)
			if err != nil {
				return err
			}
			defer conv.Close()
			fmt.Fprint(cmd.OutOrStdout(), conv.Info())
			return nil
		},
	}
}
