package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/atlas/internal/calllog"
	"github.com/zulandar/atlas/internal/config"
	"github.com/zulandar/atlas/internal/game"
	"github.com/zulandar/atlas/internal/gateway"
	"github.com/zulandar/atlas/internal/mirror"
	"github.com/zulandar/atlas/internal/server"
	"github.com/zulandar/atlas/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Atlas HTTP service",
		Long: `Starts the game service: the JSON API and event stream, the inference call
log, and any configured Slack or Discord mirrors.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to Atlas config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	out := cmd.OutOrStdout()
	loadEnv()
	cfg, err := loadConfig(cmd, configPath)
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Server.Port = port
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle OS signals for graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.Setup(ctx, telemetry.Opts{
			Endpoint: cfg.Telemetry.Endpoint,
			Insecure: cfg.Telemetry.Insecure,
			Version:  Version,
		})
		if err != nil {
			return err
		}
		defer func() {
			flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer flushCancel()
			if err := shutdown(flushCtx); err != nil {
				log.Printf("atlas: telemetry shutdown: %v", err)
			}
		}()
	}

	// Background workers stop with ctx; wait for them on every return path.
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	store, _, err := openCallLog(cfg)
	if err != nil {
		return err
	}
	var rec gateway.Recorder
	opts := server.Opts{MaxUploadBytes: cfg.Game.MaxUploadBytes}
	if store != nil {
		rec = store
		opts.Calls = store
		pruner, err := calllog.NewPruner(calllog.PrunerOpts{
			Store:     store,
			Schedule:  cfg.CallLog.PruneSchedule,
			Retention: cfg.CallLog.Retention(),
		})
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			pruner.Run(ctx)
		}()
		fmt.Fprintf(out, "Call log: %s (next prune in %s)\n", cfg.Database.Driver, pruner.Next().Round(time.Minute))
	}

	gw, err := newGateway(cfg, rec)
	if err != nil {
		return err
	}
	eng, err := game.New(game.Opts{
		Gateway:     gw,
		PromptDelay: cfg.Game.PromptDelay,
		CallTimeout: cfg.Game.CallTimeout,
		Context:     ctx,
	})
	if err != nil {
		return err
	}
	opts.Engine = eng

	posters, err := newPosters(cfg)
	if err != nil {
		return err
	}
	if len(posters) > 0 {
		m, err := mirror.New(mirror.Opts{Source: eng, Posters: posters})
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Run(ctx)
		}()
		for _, p := range posters {
			fmt.Fprintf(out, "Mirroring to %s\n", p.Name())
		}
	}

	return server.Start(ctx, server.StartOpts{
		Opts: opts,
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
		Out:  out,
	})
}
