package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/local/ebookconv/internal/ai"
	"github.com/local/ebookconv/internal/health"
	logpkg "github.com/local/ebookconv/internal/logger"
	mpkg "github.com/local/ebookconv/internal/metrics"
	"github.com/local/ebookconv/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serves the delegation endpoint (/api/convert), the CloudConvert key check,
batch status, the LLM proxy, /health and /metrics.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("port", "", "override PORT")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger := logpkg.Component("server")
	if p, _ := cmd.Flags().GetString("port"); p != "" {
		cfg.Server.Port = p
	}

	a := newApp(ctx, cfg)
	defer a.close()
	mpkg.Init()

	llm := a.llm()

	srv := server.New(server.Dependencies{
		Delegator:      a.delegators(cfg.Remote.Providers, false),
		CloudConvert:   a.cloud,
		Status:         a.status,
		Health:         a.checker(ctx, llm),
		LLM:            llm,
		MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
	})
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	hs := &http.Server{Addr: ":" + cfg.Server.Port, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Msgf("HTTP server listening on :%s", cfg.Server.Port)
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()
	err := hs.Shutdown(sctx)
	logger.Info().Msg("shutdown complete")
	return err
}

func (a *app) checker(ctx context.Context, llm *ai.Registry) *health.Checker {
	opts := health.Options{
		CloudConvert: a.cloud,
		Calibre:      a.calibre,
	}
	if a.redis != nil {
		opts.Redis = health.PingFunc(func(ctx context.Context) error { return a.redis.Ping(ctx).Err() })
	}
	if a.backend != nil {
		opts.Backend = a.backend
	}
	if a.cfg.S3.Enabled() {
		if c, err := a.s3(ctx, ""); err == nil {
			opts.S3 = c
		}
	}
	for _, name := range llm.Names() {
		if c, _ := llm.Get(name); c.Configured() {
			opts.LLMProviders = append(opts.LLMProviders, name)
		}
	}
	return health.New(opts)
}
