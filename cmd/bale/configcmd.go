package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bamsammich/bale/internal/config"
)

func newConfigCmd(g *globalFlags) *cobra.Command {
	var pathOnly bool
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the config file path and the defaults it sets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			if pathOnly {
				fmt.Fprintln(w, config.Path())
				return nil
			}
			fmt.Fprintf(w, "# config: %s\n# state:  %s\n", config.Path(), g.statePath)
			out, err := config.Encode(g.cfg)
			if err != nil {
				return err
			}
			_, err = w.Write(out)
			return err
		},
	}
	cmd.Flags().BoolVar(&pathOnly, "path", false, "print only the config file path")
	return cmd
}
