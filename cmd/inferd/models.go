package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"inferd/internal/registry"
	"inferd/pkg/types"
)

func newModelsCmd(root *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "models",
		Aliases: []string{"catalog"},
		Short:   "List catalog models with install and selection state",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			rt, err := openRuntime(cfg, newLogger(cfg.LogLevel, root.logJSON), nil)
			if err != nil {
				return err
			}
			defer rt.Close()
			models := rt.mgr.ListModels()
			w := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(types.ModelsResponse{Models: models})
			}
			for _, m := range models {
				d, _ := rt.catalog.Lookup(m.Name)
				fmt.Fprintln(w, describe(d, m.Installed, m.Selected))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newRemoteModelsCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remote-models",
		Short: "List models advertised by the configured remote endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			rt, err := openRuntime(cfg, newLogger(cfg.LogLevel, root.logJSON), nil)
			if err != nil {
				return err
			}
			defer rt.Close()
			ids, err := rt.mgr.RemoteModels(cmd.Context())
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}

// describe renders one catalog row for the models command.
func describe(d registry.Descriptor, installed, selected bool) string {
	mark := " "
	if selected {
		mark = "*"
	}
	state := "-"
	if installed {
		state = "installed"
	}
	return fmt.Sprintf("%s %-40s %-10s %s", mark, d.FormattedName(), state, d.Description)
}
