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

	log "github.com/sirupsen/logrus"

	"visitplan/internal/api"
	"visitplan/internal/buildinfo"
	"visitplan/internal/config"
)

func main() {
	cfgPath := flag.String("config", "", "path to a YAML config file (default $VISITPLAN_CONFIG)")
	version := flag.Bool("version", false, "print build information and exit")
	flag.Parse()
	if *version {
		fmt.Println(buildinfo.String())
		return
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := cfg.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srvDeps, err := api.NewServer(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to init server")
	}
	defer func() {
		if err := srvDeps.Close(); err != nil {
			logger.WithError(err).Warn("close")
		}
	}()

	srvDeps.Start(ctx)
	worker := srvDeps.NewWebhookWorker()
	go worker.Run(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srvDeps.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("shutdown")
		}
	}()

	logger.WithField("addr", srv.Addr).WithField("build", buildinfo.String()).Info("API listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Fatal("server error")
	}
	// running jobs see the cancelled context and record what they have
	srvDeps.Wait()
	logger.Info("stopped")
}
