package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mapd-tech/civic-impact/internal/api"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve permits, amenities and impact reports over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		cache, closeCache := initCache(ctx)
		defer closeCache()

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           api.NewServer(st, cache).Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// initCache returns the redis response cache when redis.addr is set and
// reachable, and an in-process cache otherwise.
func initCache(ctx context.Context) (api.Cache, func()) {
	client := api.OpenRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if client == nil {
		return api.NewMemoryCache(512, cfg.Redis.TTL()), func() {}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		zap.L().Warn("redis unreachable, using in-process cache",
			zap.String("addr", cfg.Redis.Addr),
			zap.Error(err),
		)
		client.Close() //nolint:errcheck
		return api.NewMemoryCache(512, cfg.Redis.TTL()), func() {}
	}
	zap.L().Info("redis response cache enabled", zap.String("addr", cfg.Redis.Addr))
	return api.NewRedisCache(client, cfg.Redis.TTL()), func() { client.Close() } //nolint:errcheck
}
