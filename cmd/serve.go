package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/cv-screener/internal/api"
	"github.com/spigell/cv-screener/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the API over HTTP for local development",
	Run: func(cmd *cobra.Command, _ []string) {
		runServe(cmd)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("dev-user", "", "caller id injected into every request in place of a Cognito token")
	serveCmd.Flags().String("listen", "", "listen address (overrides http.listen-addr)")
}

func runServe(cmd *cobra.Command) {
	cfg, logger := setup(false)

	devUser, _ := cmd.Flags().GetString("dev-user")
	if devUser == "" {
		logger.Warn("no --dev-user given; every request will be rejected as unauthenticated")
	}

	addr := cfg.HTTP.ListenAddr
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		addr = listen
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, err := newServices(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("creating services", zap.Error(err))
	}

	dispatcher, err := svc.dispatcher()
	if err != nil {
		logger.Fatal("creating dispatcher", zap.Error(err))
	}

	handlers, err := svc.api(ctx, dispatcher, false)
	if err != nil {
		logger.Fatal("creating api", zap.Error(err))
	}

	srv := server.New(server.Config{ListenAddr: addr, DevUser: devUser}, api.Routes, handlers.Functions(), logger)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return srv.Run(groupCtx)
	})
	group.Go(func() error {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(signals)

		select {
		case sig := <-signals:
			logger.Info("shutdown started", zap.String("signal", sig.String()))
			cancel()
		case <-groupCtx.Done():
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
