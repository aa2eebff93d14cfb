package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/hrrag/internal/app"
	"github.com/efebarandurmaz/hrrag/internal/server"
)

func newServeCmd(configPath *string) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP query API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), *configPath, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}

func serve(ctx context.Context, configPath, addr string) error {
	cfg, err := app.Setup(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}

	health := server.NewHealthServer(app.Version)
	health.RegisterCheck("index", server.IndexHealthChecker(cfg.Vector.Backend, rt.pipeline.IndexSize))
	health.RegisterCheck("llm", server.LLMHealthChecker(rt.synth.Provider(), rt.synth.UsesLLM()))
	health.RegisterCheck("embedding", server.DependencyHealthChecker("embedding", false, func(context.Context) error {
		return rt.backends.EmbedErr
	}))
	health.RegisterCheck("cache", server.CacheHealthChecker(func() map[string]string {
		st := rt.pipeline.Cache().Stats()
		return map[string]string{
			"entries":  strconv.Itoa(st.Size),
			"capacity": strconv.Itoa(st.Capacity),
			"hits":     strconv.FormatInt(st.Hits, 10),
			"misses":   strconv.FormatInt(st.Misses, 10),
		}
	}))

	srv, err := server.New(server.Config{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		CORSOrigin:      cfg.Server.CORSOrigin,
	}, rt.pipeline,
		server.WithLineage(rt.lineage),
		server.WithMetrics(rt.metrics),
		server.WithHealth(health),
	)
	if err != nil {
		return err
	}

	sh := server.NewShutdownHandler(&server.ShutdownConfig{Timeout: cfg.Server.ShutdownTimeout})
	sh.AddHook(server.HTTPServerShutdownHook("api", srv.Shutdown))
	for _, h := range rt.hooks() {
		sh.AddHook(h)
	}
	sh.Start()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	health.SetReady(true)
	slog.Info("hrrag ready", "addr", cfg.Server.Addr, "backend", cfg.Vector.Backend, "llm", rt.synth.Provider())

	select {
	case err := <-errCh:
		if err != nil {
			sh.Shutdown()
			sh.Wait()
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		sh.Shutdown()
	case <-sh.ShutdownCh():
	}
	sh.Wait()
	return nil
}
