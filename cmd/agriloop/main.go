package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/NAME-ASHWANIYADAV/agriloop/internal/app"
	"github.com/NAME-ASHWANIYADAV/agriloop/internal/channel"
	"github.com/NAME-ASHWANIYADAV/agriloop/internal/chat"
	"github.com/NAME-ASHWANIYADAV/agriloop/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string
	root := &cobra.Command{
		Use:           "agriloop",
		Short:         "Multilingual WhatsApp farming assistant",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadEnvFile(envFile, cmd.Flags().Changed("env-file"))
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading configuration")
	root.AddCommand(newServeCmd(), newChatCmd())
	return root
}

// loadEnvFile applies a dotenv file without overriding variables that are
// already set. A missing default file is not an error.
func loadEnvFile(path string, explicit bool) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err == nil || (!explicit && errors.Is(err, os.ErrNotExist)) {
		return nil
	}
	return fmt.Errorf("load %s: %w", path, err)
}

func newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook, chat and metrics server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			logger := newLogger(cfg, os.Stderr)
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	built, err := app.Build(ctx, cfg, app.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer func() {
		if err := built.Cleanup(); err != nil {
			logger.Error("cleanup failed", "error", err)
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           built.API.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", "addr", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
			_ = httpServer.Close()
		}
		if err := built.API.Drain(shutdownCtx); err != nil {
			logger.Warn("in-flight messages cancelled", "error", err)
		}
		logger.Info("shutdown complete")
		return nil
	})
	return g.Wait()
}

func newChatCmd() *cobra.Command {
	var (
		identity  string
		mediaRef  string
		mediaType string
	)
	cmd := &cobra.Command{
		Use:   "chat [text]",
		Short: "Send one message through the dialogue and print the replies",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			// Replies go to stdout; logs stay on stderr.
			logger := newLogger(cfg, cmd.ErrOrStderr())

			out := channel.NewCapture()
			built, err := app.Build(cmd.Context(), cfg, app.Options{Logger: logger, CLISender: out})
			if err != nil {
				return err
			}
			defer built.Cleanup()

			p := chat.Payload{
				ID:        uuid.NewString(),
				Identity:  identity,
				Channel:   chat.ChannelCLI,
				MediaRef:  mediaRef,
				MediaType: mediaType,
			}
			if len(args) == 1 {
				p.Text, p.HasText = args[0], true
			}
			res, err := built.Controller.Handle(cmd.Context(), chat.Classify(p, time.Now()))
			for _, m := range out.For(identity) {
				fmt.Fprintln(cmd.OutOrStdout(), m.Text)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "state: %s -> %s (%s)\n", res.From, res.To, res.Outcome)
			return err
		},
	}
	cmd.Flags().StringVar(&identity, "identity", "", "sender identity, e.g. +919876543210")
	cmd.Flags().StringVar(&mediaRef, "media-ref", "", "image URL to send instead of, or with, the text")
	cmd.Flags().StringVar(&mediaType, "media-type", "", "content type of --media-ref")
	_ = cmd.MarkFlagRequired("identity")
	return cmd
}
