package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"webrag/api"
	"webrag/config"
	"webrag/pkg/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	rootCmd := &cobra.Command{
		Use:           "webrag",
		Short:         "Chat with the content of a website",
		Long:          "webrag crawls a website, indexes its text and answers questions grounded in it",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd(), indexCmd(), askCmd(), sessionsCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads configuration and builds the logger and service graph.
func setup() (*app, *zap.Logger, error) {
	env := config.GetEnv()
	cfg, err := config.Load(env)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewLogger(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	a, err := buildApp(cfg, log)
	if err != nil {
		_ = log.Sync()
		return nil, nil, err
	}
	return a, log, nil
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	cmd.Flags().IntP("port", "p", 0, "Port to listen on (overrides app.port)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, log, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	defer a.Close()

	port := a.config.App.Port
	if p, _ := cmd.Flags().GetInt("port"); p > 0 {
		port = p
	}

	ctx := cmd.Context()

	// Warm the embedding model and reload persisted sessions without
	// blocking the listener.
	go func() {
		if err := a.provider.Warmup(ctx); err != nil {
			log.Warn("embedding warmup failed, will retry on first use", zap.Error(err))
		}
		if _, err := a.manager.Restore(ctx); err != nil {
			log.Error("failed to restore sessions", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           api.NewServer(a.manager, a.config.CORS.AllowedOrigins, log.Named("http")).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening",
			zap.Int("port", port),
			zap.String("env", a.config.App.Env),
			zap.String("storage", a.config.Storage.Root),
			zap.String("backend", a.config.Storage.Backend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func indexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index <url>",
		Short: "Crawl and index a website, printing the new session id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, log, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			defer a.Close()

			res, err := a.manager.Create(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session %s: %d pages, %d chunks\n",
				res.SessionID, res.PagesCrawled, res.ChunksCreated)
			return nil
		},
	}
}

func askCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <session-id> <question>",
		Short: "Ask a question about an indexed website",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, log, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			defer a.Close()

			res, err := a.manager.Ask(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Answer)
			return nil
		},
	}
}

func sessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List persisted sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, log, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			defer a.Close()

			if _, err := a.manager.Restore(cmd.Context()); err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SESSION\tTURNS\tURL")
			for _, s := range a.manager.List() {
				fmt.Fprintf(w, "%s\t%d\t%s\n", s.ID, s.Turns, s.URL)
			}
			return w.Flush()
		},
	}
}
