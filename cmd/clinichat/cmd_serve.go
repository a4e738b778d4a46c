package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"clinichat/internal/config"
	"clinichat/internal/relay"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the development chat relay",
	RunE:  runServe,
}

// newHTTPServer applies the configured timeouts. They only govern the plain
// HTTP endpoints: the upgrader clears the connection deadlines when /ws is
// hijacked, so long-lived channel connections are unaffected.
func newHTTPServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load(configPath)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	var store *relay.Store
	if cfg.EventLog.Path != "" {
		var err error
		store, err = relay.NewStore(cfg.EventLog.Path)
		if err != nil {
			return fmt.Errorf("open event log: %w", err)
		}
		defer func() { _ = store.Close() }()
		log.Printf("event log enabled at %s", cfg.EventLog.Path)
	}

	srv := newHTTPServer(cfg, relay.NewHandler(relay.New(store), store))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("relay listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Println("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
