package main

import (
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"inferd/internal/common/fsutil"
)

func newPullCmd(root *rootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "pull [model]",
		Short: "Download a model artifact (defaults to the selected model)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			log := newLogger(cfg.LogLevel, root.logJSON)
			rt, err := openRuntime(cfg, log, nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			name := rt.prefs.SelectedModel()
			if len(args) == 1 {
				name = args[0]
				if _, ok := rt.catalog.Lookup(name); !ok {
					return fmt.Errorf("unknown model %q", name)
				}
			}
			desc := rt.catalog.Find(name)
			if !desc.Backend.Local() {
				return fmt.Errorf("%s is served remotely; nothing to download", desc.Name)
			}
			target := filepath.Join(cfg.ModelsDir, desc.FileName)
			if size := fsutil.FileSize(target); !force && size > 0 && size >= desc.MinValidBytes {
				fmt.Fprintf(cmd.OutOrStdout(), "%s already installed (%s)\n", desc.Name, humanize.IBytes(uint64(size)))
				return nil
			}
			out := cmd.ErrOrStderr()
			err = rt.acq.Acquire(cmd.Context(), desc, target, func(p int) {
				fmt.Fprintf(out, "\r%s: %3d%%", desc.Name, p)
				if p == 100 {
					fmt.Fprintln(out)
				}
			})
			if err != nil {
				return fmt.Errorf("pull %s: %w", desc.Name, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s installed at %s (%s)\n", desc.Name, target, humanize.IBytes(uint64(fsutil.FileSize(target))))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Download even when a valid artifact exists")
	return cmd
}
