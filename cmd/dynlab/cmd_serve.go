package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dynlab/dynlab/internal/webapi"
	"github.com/dynlab/dynlab/internal/webserver"
)

func newServeCommand() *cobra.Command {
	var (
		params analysisFlags
		port   int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the analysis REST API",
		Long: `Start an HTTP server on 127.0.0.1 exposing the threads configured in
.dynlab.yaml.

Send SIGHUP to re-read the thread CSV files.

Endpoints:
  GET  /api/health
  GET  /api/threads
  GET  /api/threads/{name}/analysis?window=&sigma=&persist=&k=&scope=
  POST /api/analyze
  GET  /metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			p, scope, err := params.resolve(cmd, cfg)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}

			store := webapi.NewFileStore(cfg.Threads)
			srv, err := webserver.New(webserver.Config{
				Port:           cfg.Server.Port,
				Store:          store,
				Defaults:       webapi.Defaults{Params: p, Scope: scope},
				AllowedOrigins: cfg.Server.AllowedOrigins,
				Logger:         slog.Default(),
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			hup := make(chan os.Signal, 1)
			signal.Notify(hup, syscall.SIGHUP)
			defer signal.Stop(hup)
			go watchReload(ctx, store, hup)

			fmt.Fprintf(cmd.ErrOrStderr(), "dynlab API: http://%s (%d thread(s))\n", srv.Addr(), len(cfg.Threads)) //nolint:errcheck
			return srv.ListenAndServe(ctx)
		},
	}

	params.register(cmd)
	cmd.Flags().IntVar(&port, "port", 3000, "Port to listen on (overrides server.port)")

	return cmd
}

// watchReload drops the cached threads of store each time a signal arrives
// on sig, until ctx is done.
func watchReload(ctx context.Context, store *webapi.FileStore, sig <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sig:
			store.Reload()
			slog.Info("reloaded thread files")
		}
	}
}
