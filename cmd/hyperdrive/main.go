// CLAUDE:SUMMARY CLI entry point for hyperdrive — one-shot page distillation, MCP stdio server, and demo board modes.
// Command hyperdrive drives a headless hypermedia session.
//
// Usage:
//
//	hyperdrive -url https://example.com        # load a page, print markdown
//	hyperdrive -url https://example.com -json  # print the visit outcome as JSON
//	hyperdrive -mcp                            # serve session tools over stdio
//	hyperdrive -demo :8080                     # serve the demo message board
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/net/html"
	"gopkg.in/natefinch/lumberjack.v2"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/hyperdrive/distill"
	"github.com/hazyhaar/hyperdrive/drive"
	"github.com/hazyhaar/hyperdrive/internal/demoapp"
	"github.com/hazyhaar/hyperdrive/journal"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("hyperdrive: no .env file", "error", err)
	}

	configPath := flag.String("config", envOrDefault("HYPERDRIVE_CONFIG", ""), "path to session yaml config")
	visitURL := flag.String("url", "", "load a URL, print it as markdown and exit")
	asJSON := flag.Bool("json", false, "with -url, print the visit outcome as JSON")
	mcpMode := flag.Bool("mcp", false, "serve session tools over stdio")
	demoAddr := flag.String("demo", "", "serve the demo message board on this address")
	journalPath := flag.String("journal", envOrDefault("HYPERDRIVE_JOURNAL", ""), "record visits to this sqlite file")
	logLevel := flag.String("log-level", envOrDefault("HYPERDRIVE_LOG_LEVEL", "info"), "log level: debug, info, warn, error")
	logFile := flag.String("log-file", envOrDefault("HYPERDRIVE_LOG_FILE", ""), "also log to this file, with rotation")
	flag.Parse()

	logger := newLogger(*logLevel, *logFile)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *journalPath, *visitURL, *demoAddr, *asJSON, *mcpMode); err != nil {
		logger.Error("hyperdrive: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, journalPath, visitURL, demoAddr string, asJSON, mcpMode bool) error {
	if demoAddr != "" {
		return runDemo(ctx, logger, demoAddr)
	}

	if mcpMode || visitURL != "" {
		sess, cleanup, err := newSession(logger, configPath, journalPath)
		if err != nil {
			return err
		}
		defer cleanup()

		if mcpMode {
			return runMCP(ctx, logger, sess)
		}
		return runVisit(ctx, sess, visitURL, asJSON)
	}

	fmt.Fprintln(os.Stderr, "usage: hyperdrive -url <url> [-json] | -mcp | -demo <addr>")
	os.Exit(1)
	return nil
}

// newSession builds the session plus its journal when one is
// configured. The returned cleanup closes whatever was opened.
func newSession(logger *slog.Logger, configPath, journalPath string) (*drive.Session, func(), error) {
	cfg := drive.Config{}
	if configPath != "" {
		loaded, err := drive.LoadConfigFile(configPath)
		if err != nil {
			return nil, nil, fmt.Errorf("load config: %w", err)
		}
		cfg = *loaded
	}
	if journalPath != "" {
		cfg.JournalPath = journalPath
	}

	opts := []drive.SessionOption{drive.WithLogger(logger)}
	cleanup := func() {}
	if cfg.JournalPath != "" {
		j, err := journal.Open(cfg.JournalPath, journal.WithLogger(logger))
		if err != nil {
			return nil, nil, fmt.Errorf("open journal: %w", err)
		}
		cleanup = func() {
			if err := j.Close(); err != nil {
				logger.Warn("hyperdrive: close journal", "error", err)
			}
		}
		opts = append(opts, drive.WithRecorder(j))
	}

	sess, err := drive.NewSession(cfg, opts...)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("session: %w", err)
	}
	return sess, cleanup, nil
}

// One-shot: load the page, print it and exit.
func runVisit(ctx context.Context, sess *drive.Session, target string, asJSON bool) error {
	out, err := sess.Load(ctx, target)
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}

	if asJSON {
		report := struct {
			URL        string `json:"url"`
			Title      string `json:"title"`
			State      string `json:"state"`
			StatusCode int    `json:"status_code"`
			Redirected bool   `json:"redirected"`
			Frames     int    `json:"frames"`
			DurationMS int64  `json:"duration_ms"`
		}{
			URL:        out.URL,
			Title:      sess.Title(),
			State:      string(out.State),
			StatusCode: out.StatusCode,
			Redirected: out.Redirected,
			Frames:     len(sess.Frames()),
			DurationMS: out.Duration.Milliseconds(),
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	var md string
	var mdErr error
	sess.WithDocument(func(doc *html.Node) {
		md, mdErr = distill.Markdown(doc, out.URL)
	})
	if mdErr != nil {
		return fmt.Errorf("markdown: %w", mdErr)
	}
	fmt.Println(md)
	return nil
}

// Daemon mode: session tools over stdio. Stdout carries the protocol,
// so all logging goes to stderr.
func runMCP(ctx context.Context, logger *slog.Logger, sess *drive.Session) error {
	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "hyperdrive",
		Version: "1.0.0",
	}, nil)
	sess.RegisterMCP(srv)

	logger.Info("hyperdrive: mcp server on stdio", "session", sess.ID())
	return srv.Run(ctx, &mcp.StdioTransport{})
}

// Daemon mode: the demo message board.
func runDemo(ctx context.Context, logger *slog.Logger, addr string) error {
	app := demoapp.New(demoapp.WithLogger(logger))
	srv := &http.Server{Addr: addr, Handler: app.Handler()}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("hyperdrive: demo board listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("hyperdrive: shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

func newLogger(level, file string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	// Stdout stays clean: one-shot modes print results there and mcp
	// mode speaks the protocol over it.
	var w io.Writer = os.Stderr
	if file != "" {
		w = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    25,
			MaxBackups: 10,
			MaxAge:     14,
			Compress:   true,
		})
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
