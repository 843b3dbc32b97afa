package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"

	"RoomChat/global"
	"RoomChat/global/config"
	"RoomChat/logger"
	"RoomChat/tools/safe"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfgPath := flag.String("config", "", "path to config.yaml (optional, env ROOMCHAT_* overrides)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Error("load config failed", zap.Error(err))
		os.Exit(1)
	}
	config.Global = cfg
	logger.Setup(cfg.Log.Level, cfg.Log.Format)
	defer logger.Sync()

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	app, err := global.ConfigAll(context.Background(), cfg)
	if err != nil {
		logger.Error("boot failed", zap.Error(err))
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      app.Engine(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}
	safe.Go("http-server", func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTP.Addr), zap.String("node", cfg.NodeID))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", zap.Error(err))
			os.Exit(1)
		}
	})

	// one operation so the listener stops before sessions and backends close
	wait := gfshutdown.GracefulShutdown(context.Background(), cfg.HTTP.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"roomchat": func(ctx context.Context) error {
				logger.Info("shutting down")
				err := srv.Shutdown(ctx)
				app.Close(ctx)
				return err
			},
		})

	code := <-wait
	logger.Info("exited", zap.Int("code", code))
	logger.Sync()
	os.Exit(code)
}
