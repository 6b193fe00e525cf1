// Command dyno-server serves the dyno HTTP API over a SQLite store.
//
//	dyno-server -listen :8080 -db dyno.db [-config dyno.json]
//	dyno-server -db dyno.db migrate up|down|status|version|force|help
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/dyno.report/internal/api"
	"github.com/banshee-data/dyno.report/internal/config"
	"github.com/banshee-data/dyno.report/internal/db"
	"github.com/banshee-data/dyno.report/internal/monitoring"
	"github.com/banshee-data/dyno.report/internal/version"
)

const shutdownTimeout = 1 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("dyno-server", flag.ContinueOnError)
	fs.SetOutput(stderr)
	listen := fs.String("listen", ":8080", "Listen address")
	dbPath := fs.String("db", "dyno.db", "SQLite database path")
	configPath := fs.String("config", "", "Optional dyno config JSON")
	showVersion := fs.Bool("version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *showVersion {
		fmt.Fprintln(stdout, version.String("dyno-server"))
		return 0
	}

	if rest := fs.Args(); len(rest) > 0 {
		if rest[0] != "migrate" {
			fmt.Fprintf(stderr, "unknown command %q\n", rest[0])
			return 2
		}
		if err := db.RunMigrateCommand(stdout, rest[1:], *dbPath); err != nil {
			fmt.Fprintf(stderr, "migrate: %v\n", err)
			return 1
		}
		return 0
	}

	if *listen == "" {
		fmt.Fprintln(stderr, "listen address is required")
		return 2
	}

	if err := serveFromFlags(ctx, *listen, *dbPath, *configPath); err != nil {
		fmt.Fprintf(stderr, "dyno-server: %v\n", err)
		return 1
	}
	return 0
}

func serveFromFlags(ctx context.Context, listen, dbPath, configPath string) error {
	cfg := config.EmptyDynoConfig()
	if configPath != "" {
		loaded, err := config.LoadDynoConfig(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	store, err := db.NewDB(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	h, err := newHandler(store, cfg)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", listen, err)
	}
	monitoring.Logf("listening on %s (db %s)", ln.Addr(), dbPath)
	return serve(ctx, ln, h)
}

// newHandler mounts the API and admin routes behind request logging.
func newHandler(store *db.DB, cfg *config.DynoConfig) (http.Handler, error) {
	server, err := api.NewServer(store, cfg)
	if err != nil {
		return nil, err
	}
	mux := server.ServeMux()
	if err := store.AttachAdminRoutes(mux); err != nil {
		return nil, fmt.Errorf("attach admin routes: %w", err)
	}
	return api.LoggingMiddleware(mux), nil
}

// serve runs h on ln until ctx is cancelled, then shuts down.
func serve(ctx context.Context, ln net.Listener, h http.Handler) error {
	server := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var (
		wg       sync.WaitGroup
		serveErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	}()

	select {
	case <-ctx.Done():
	case <-waitCh(&wg):
		return fmt.Errorf("serve: %w", serveErr)
	}
	monitoring.Logf("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			monitoring.Logf("HTTP server force close error: %v", err)
		}
	}

	wg.Wait()
	monitoring.Logf("graceful shutdown complete")
	return serveErr
}

func waitCh(wg *sync.WaitGroup) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}
