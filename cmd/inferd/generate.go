package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"inferd/internal/manager"
	"inferd/internal/prompt"
)

func newGenerateCmd(root *rootOptions) *cobra.Command {
	var (
		screen  string
		consent bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Load the selected model and answer one prompt",
		Args:  cobra.MinimumNArgs(1),
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

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			load := rt.mgr.Initialize
			if consent {
				load = rt.mgr.ExplicitDownload
			}
			if err := load(ctx); err != nil {
				if errors.Is(err, manager.ErrCellularConsentRequired) {
					return fmt.Errorf("%w (rerun with --consent to download anyway)", err)
				}
				return err
			}
			out, err := rt.mgr.GenerateSync(ctx, strings.Join(args, " "), screen)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, prompt.StripCommands(out.Text))
			for _, c := range prompt.ParseCommands(out.Text) {
				fmt.Fprintf(w, "[%s] %s\n", c.Kind, c.Arg)
			}
			log.Debug().Str("model", out.Model).Str("backend", string(out.Backend)).Dur("elapsed", out.Elapsed).Msg("generated")
			return nil
		},
	}
	cmd.Flags().StringVar(&screen, "screen", "", "Screen context passed alongside the prompt")
	cmd.Flags().BoolVar(&consent, "consent", false, "Allow downloading on a metered network")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Overall time limit (0 disables)")
	return cmd
}
