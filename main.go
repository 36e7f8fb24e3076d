package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"townsync/config"
	"townsync/logging"
	"townsync/server"
)

// townsync 入口：启动玩家注册中心（HTTP + WebSocket 推送）
func main() {
	cfg, err := config.LoadServer(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log, err := logging.New(logging.Options{File: cfg.Log.File, Level: cfg.Log.Level})
	if err != nil {
		panic(err)
	}
	defer logging.Sync(log)

	gin.SetMode(gin.ReleaseMode)
	srv := server.New(cfg, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv.Start(ctx)

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	go func() {
		log.Infof("townsync listening on %s (player ttl %s, feed %d Hz)", cfg.Addr, cfg.PlayerTTL, cfg.FeedHz)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	// 优雅退出（Ctrl+C）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down...")

	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warnf("shutdown: %v", err)
	}
}
