// Copyright 2024-2026 Aiku AI

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aiku/mcrelay/pkg/admin"
	"github.com/aiku/mcrelay/pkg/config"
	"github.com/aiku/mcrelay/pkg/game/vanilla"
	"github.com/aiku/mcrelay/pkg/gateway/discord"
	"github.com/aiku/mcrelay/pkg/gateway/mattermost"
	"github.com/aiku/mcrelay/pkg/metrics"
	"github.com/aiku/mcrelay/pkg/prefs"
	"github.com/aiku/mcrelay/pkg/relay"
	"github.com/aiku/mcrelay/pkg/relay/mcfmt"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, configPath)
		},
	}
}

// logBroadcaster stands in for RCON when it is not configured so inbound
// chat still shows up in the relay log.
type logBroadcaster struct {
	log zerolog.Logger
}

func (b logBroadcaster) Broadcast(_ context.Context, msg mcfmt.Message, _ func(string) bool) error {
	b.log.Info().Str("message", msg.Plain()).Msg("Inbound message (RCON disabled)")
	return nil
}

// task is a long-running component started by run.
type task struct {
	name string
	run  func(ctx context.Context) error
}

func run(ctx context.Context, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	log := newLogger(cfg.Logging)
	log.Info().Str("version", Tag).Str("config", path).Msg("Starting mcrelay")
	for _, w := range cfg.Warnings() {
		log.Warn().Msg(w)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	relayMetrics := metrics.NewRelayMetrics(reg)

	deps := relay.Deps{Metrics: relayMetrics}
	if cfg.Storage.Path != "" {
		store, err := prefs.Open(cfg.Storage.Path, log)
		if err != nil {
			return err
		}
		defer store.Close()
		deps.Prefs = store
		deps.Links = store
	}

	var rconBroadcaster *vanilla.RCONBroadcaster
	if cfg.Game.RCONEnabled() {
		rconBroadcaster = vanilla.NewRCONBroadcaster(log, cfg.Game.RCONAddress, cfg.Game.RCONPassword)
		defer rconBroadcaster.Close()
		deps.Broadcaster = rconBroadcaster
	} else {
		deps.Broadcaster = logBroadcaster{log: log.With().Str("component", "broadcast").Logger()}
	}

	r, err := relay.New(log, cfg.Relay, deps)
	if err != nil {
		return err
	}
	r.Start(ctx)

	// reloadMu serializes file-watcher and admin API reloads.
	var reloadMu sync.Mutex
	reload := func(context.Context) (admin.ReloadResult, error) {
		reloadMu.Lock()
		defer reloadMu.Unlock()
		next, err := config.Load(path)
		if err != nil {
			return admin.ReloadResult{}, fmt.Errorf("reload rejected, keeping previous config: %w", err)
		}
		warnings := next.Warnings()
		for _, w := range warnings {
			log.Warn().Msg(w)
		}
		return admin.ReloadResult{Status: r.Reload(next.Relay), Warnings: warnings}, nil
	}

	var tasks []task
	if cfg.Discord.Enabled() {
		gw := discord.New(log, cfg.Discord.Token, cfg.Discord.ChannelIDs, r)
		tasks = append(tasks, task{"discord", gw.Run})
	}
	if cfg.Mattermost.Enabled() {
		gw := mattermost.New(log, cfg.Mattermost.ServerURL, cfg.Mattermost.Token, cfg.Mattermost.ChannelIDs, r)
		tasks = append(tasks, task{"mattermost", gw.Run})
	}
	if cfg.Game.LogPath != "" {
		lw := vanilla.NewLogWatcher(log, cfg.Game.LogPath, r)
		tasks = append(tasks, task{"log_watcher", lw.Run})
	}
	if cfg.Admin.ListenAddr != "" {
		srv := admin.NewServer(log, cfg.Admin.ListenAddr, admin.Deps{
			Reload:   reload,
			Status:   r.Status,
			Gatherer: reg,
		})
		tasks = append(tasks, task{"admin", srv.Run})
	}
	watcher, err := config.NewWatcher(log, path, func() {
		if _, err := reload(ctx); err != nil {
			log.Error().Err(err).Msg("Config reload failed")
		}
	})
	if err != nil {
		log.Warn().Err(err).Msg("Config hot reload disabled")
	} else {
		tasks = append(tasks, task{"config_watcher", func(ctx context.Context) error {
			watcher.Run(ctx)
			return nil
		}})
	}

	var wg sync.WaitGroup
	for _, t := range tasks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := t.run(ctx); err != nil {
				log.Error().Err(err).Str("task", t.name).Msg("Component stopped with error")
			}
		}()
	}

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	// Intake stops first so nothing is enqueued while the relay drains.
	wg.Wait()
	if err := r.Stop(context.Background()); err != nil {
		log.Warn().Err(err).Msg("Relay did not stop cleanly")
	}
	return nil
}
