// Command rosterd serves a user roster backed by a single CSV document
// in an object store, with session-cookie authentication on top.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/rosterhq/rosterd/internal/config"
	"github.com/rosterhq/rosterd/internal/csvdoc"
	"github.com/rosterhq/rosterd/internal/docstore"
	"github.com/rosterhq/rosterd/internal/objstore"
	"github.com/rosterhq/rosterd/internal/roster"
	"github.com/rosterhq/rosterd/internal/server"
	"github.com/rosterhq/rosterd/internal/session"
)

func main() {
	if err := mainImpl(); err != nil && err != context.Canceled {
		fmt.Fprintf(os.Stderr, "rosterd: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	configPath := flag.String("config", "", "Path to YAML config file")
	addr := flag.String("addr", "", "Bind address (overrides config)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	flag.Parse()

	if len(flag.Args()) > 0 {
		return fmt.Errorf("unknown arguments: %v", flag.Args())
	}

	if err := loadDotEnv(".env"); err != nil {
		return err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.SetDefault(initLogger(cfg.LogLevel))

	seed, err := loadSeed(cfg.SeedPath)
	if err != nil {
		return err
	}

	usersStore, sessionsStore, err := buildStores(ctx, cfg, seed)
	if err != nil {
		return err
	}
	if err := usersStore.EnsureInitialized(ctx); err != nil {
		return fmt.Errorf("initialize users document: %w", err)
	}

	rosterSvc := roster.NewService(usersStore, cfg.BcryptCost)

	ttl := time.Duration(cfg.SessionTTL)
	var sessions session.Store
	switch cfg.SessionMode {
	case config.SessionStateless:
		sessions = session.NewStateless(cfg.SessionSecret, ttl)
	default:
		if err := sessionsStore.EnsureInitialized(ctx); err != nil {
			return fmt.Errorf("initialize sessions document: %w", err)
		}
		sessions = session.NewDocStoreSessions(sessionsStore, ttl)
	}

	router, routerShutdown := server.NewRouter(rosterSvc, sessions, server.Options{
		SessionTTL:     ttl,
		LoginRateLimit: cfg.RateLimit,
	})
	defer routerShutdown()

	httpServer := &http.Server{
		Addr:        cfg.Addr,
		Handler:     router,
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}

	// Restart (via the supervisor) when the binary is replaced in place.
	if err := watchExecutable(ctx, stop); err != nil {
		slog.WarnContext(ctx, "Cannot watch executable", "err", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "addr", cfg.Addr, "backend", cfg.Backend, "sessionMode", cfg.SessionMode)
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		slog.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		slog.Info("Server stopped")
	}
	return nil
}

// buildStores selects the object store backend and wraps it in one
// document store per namespace.
func buildStores(ctx context.Context, cfg *config.Config, seed string) (docstore.Store, docstore.Store, error) {
	usersOpts := []docstore.Option{docstore.WithRetention(cfg.KeepVersions)}
	if seed != "" {
		usersOpts = append(usersOpts, docstore.WithSeed(seed))
	}
	sessionsOpts := []docstore.Option{docstore.WithRetention(cfg.KeepVersions)}

	switch cfg.Backend {
	case config.BackendGit:
		users, err := docstore.NewGitStore(cfg.GitDir, cfg.UsersNamespace, csvdoc.Header+"\n", usersOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("open git store: %w", err)
		}
		sessions, err := docstore.NewGitStore(cfg.GitDir, cfg.SessionsNamespace, session.TableHeader+"\n", sessionsOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("open git store: %w", err)
		}
		return users, sessions, nil
	case config.BackendS3:
		client, err := objstore.NewS3Client(ctx, cfg.S3)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to object store: %w", err)
		}
		users := docstore.New(client, cfg.UsersNamespace, csvdoc.Header+"\n", usersOpts...)
		sessions := docstore.New(client, cfg.SessionsNamespace, session.TableHeader+"\n", sessionsOpts...)
		return users, sessions, nil
	default:
		client := objstore.NewMemoryClient()
		users := docstore.New(client, cfg.UsersNamespace, csvdoc.Header+"\n", usersOpts...)
		sessions := docstore.New(client, cfg.SessionsNamespace, session.TableHeader+"\n", sessionsOpts...)
		return users, sessions, nil
	}
}

// loadDotEnv loads KEY=VALUE pairs from path into the environment.
// Variables already set in the environment win. A missing file is fine.
func loadDotEnv(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	for line := range strings.Lines(string(data)) {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("malformed line in %s: %s", path, line)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
			value = value[1 : len(value)-1]
		}
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return err
			}
		}
	}
	return nil
}

// loadSeed reads the bootstrap roster document, if configured.
func loadSeed(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read seed file: %w", err)
	}
	return string(data), nil
}

// initLogger initializes a structured logger with the given level.
func initLogger(level string) *slog.Logger {
	ll := &slog.LevelVar{}
	switch level {
	case "debug":
		ll.Set(slog.LevelDebug)
	case "warn":
		ll.Set(slog.LevelWarn)
	case "error":
		ll.Set(slog.LevelError)
	default:
		ll.Set(slog.LevelInfo)
	}

	// Skip timestamps when running under systemd (it adds its own).
	underSystemd := os.Getenv("JOURNAL_STREAM") != ""
	return slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000", // Like time.TimeOnly plus milliseconds.
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if underSystemd && a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	}))
}

// watchExecutable watches the current executable for modifications and
// triggers a graceful shutdown when it changes.
func watchExecutable(ctx context.Context, stop context.CancelFunc) error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(exe); err != nil {
		_ = w.Close()
		return err
	}
	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Chmod) {
					slog.InfoContext(ctx, "Executable modified, initiating shutdown")
					stop()
					return
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.WarnContext(ctx, "Error watching executable", "err", err)
			}
		}
	}()
	return nil
}
