package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"inferd/internal/httpapi"
	"inferd/internal/manager"
	"inferd/internal/prefs"
)

type serveOptions struct {
	addr            string
	corsOrigins     string
	generateTimeout time.Duration
	noInit          bool
	watchPrefs      bool
}

func newServeCmd(root *rootOptions) *cobra.Command {
	o := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, root, o)
		},
	}
	defaultAddr := ""
	if v := os.Getenv("INFERD_ADDR"); v != "" {
		defaultAddr = v
	}
	cmd.Flags().StringVar(&o.addr, "addr", defaultAddr, "HTTP listen address, e.g. :8080")
	cmd.Flags().StringVar(&o.corsOrigins, "cors-origins", "", "Comma-separated CORS origins; empty disables CORS")
	cmd.Flags().DurationVar(&o.generateTimeout, "generate-timeout", 0, "Upper bound on /generate waits (0 disables)")
	cmd.Flags().BoolVar(&o.noInit, "no-init", false, "Do not initialize the selected model at startup")
	cmd.Flags().BoolVar(&o.watchPrefs, "watch-prefs", true, "Reload preferences when the file changes")
	return cmd
}

func runServe(cmd *cobra.Command, root *rootOptions, o *serveOptions) error {
	cfg, err := root.loadConfig(cmd.Flags())
	if err != nil {
		return err
	}
	if o.addr != "" {
		cfg.Addr = o.addr
	}
	if o.corsOrigins != "" {
		cfg.CORSOrigins = splitCSV(o.corsOrigins)
	}
	log := newLogger(cfg.LogLevel, root.logJSON)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events := manager.NewBroadcaster(64)
	rt, err := openRuntime(cfg, log, events)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.Warn().Err(err).Msg("manager close")
		}
	}()

	if o.watchPrefs {
		go watchPreferences(ctx, rt)
	}
	if !o.noInit {
		rt.mgr.Start()
	}

	httpapi.SetLogger(log.With().Str("component", "http").Logger())
	httpapi.SetBaseContext(ctx)
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetGenerateTimeout(o.generateTimeout)
	httpapi.SetCORSOptions(len(cfg.CORSOrigins) > 0, cfg.CORSOrigins,
		[]string{http.MethodGet, http.MethodPost, http.MethodOptions},
		[]string{"Content-Type", "X-Log-Level"})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(rt.mgr, events),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("models_dir", cfg.ModelsDir).Msg("inferd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown")
	}
	return nil
}

// watchPreferences follows the preferences file and switches models when the
// selection changes. A live remote engine reads its endpoint on every call, so
// credential edits only force a switch when they make a failed remote usable.
func watchPreferences(ctx context.Context, rt *appRuntime) {
	selected := rt.prefs.SelectedModel()
	remote := rt.prefs.RemoteEndpoint().Configured()
	err := rt.prefs.Watch(ctx, func(p prefs.Preferences) {
		nowRemote := p.Remote.Configured()
		becameUsable := nowRemote && !remote && !rt.mgr.Ready()
		remote = nowRemote
		if p.SelectedModel == selected && !becameUsable {
			return
		}
		selected = p.SelectedModel
		rt.log.Info().Str("event", "selection_changed").Str("model", selected).Bool("remote_configured", nowRemote).Msg("")
		if err := rt.mgr.Go("switch", rt.mgr.Switch); err != nil {
			rt.log.Warn().Err(err).Msg("switch after preference change")
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		rt.log.Warn().Err(err).Str("path", rt.prefs.Path()).Msg("preferences watch stopped")
	}
}
