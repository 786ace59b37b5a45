// Command casavox runs the voice session service for the casavox investment
// assistant: it manages the realtime connection to the hosted speech model
// and exposes metrics and health endpoints.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/nmellis/casavox/internal/backend"
	"github.com/nmellis/casavox/internal/config"
	"github.com/nmellis/casavox/internal/health"
	"github.com/nmellis/casavox/internal/observe"
	"github.com/nmellis/casavox/internal/resilience"
	"github.com/nmellis/casavox/internal/voice"
	"github.com/nmellis/casavox/pkg/realtime"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	autoConnect := flag.Bool("connect", false, "connect the voice session immediately on startup")
	flag.Parse()

	// ── Configuration (with hot reload) ───────────────────────────────────────
	logLevel := &slog.LevelVar{}

	var mgr *voice.Manager
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if !d.HasChanges() {
			return
		}
		if d.LogLevelChanged {
			logLevel.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.SessionChanged && mgr != nil {
			slog.Info("session defaults changed; they apply to the next connection")
		}
		if d.ReconnectChanged {
			slog.Info("reconnect policy changed; it applies to the next connection",
				"delay", d.NewDelay, "max_attempts", d.NewMaxAttempts)
		}
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "casavox: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "casavox: %v\n", err)
		}
		return 1
	}
	defer watcher.Stop()
	cfg := watcher.Current()

	// ── Logger ────────────────────────────────────────────────────────────────
	logLevel.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("casavox starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Observability ─────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "casavox",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Backend client ────────────────────────────────────────────────────────
	var backendOpts []backend.Option
	if cfg.Backend.Timeout > 0 {
		backendOpts = append(backendOpts, backend.WithTimeout(cfg.Backend.Timeout))
	}
	client, err := backend.New(cfg.Backend.BaseURL, cfg.Backend.APIKey, backendOpts...)
	if err != nil {
		slog.Error("failed to create backend client", "err", err)
		return 1
	}

	// ── Session manager ───────────────────────────────────────────────────────
	var dialerOpts []realtime.WSDialerOption
	if cfg.Realtime.BaseURL != "" {
		dialerOpts = append(dialerOpts, realtime.WithBaseURL(cfg.Realtime.BaseURL))
	}

	mgr = voice.NewManager(client, client, client,
		voice.WithDialer(realtime.NewWSDialer(dialerOpts...).Dial),
		voice.WithIdentity(cfg.Identity.UserID, cfg.Identity.TenantID),
		voice.WithDefaults(cfg.SessionDefaults()),
		voice.WithRetryPolicy(resilience.NewRetryPolicy(cfg.Reconnect.Delay, cfg.Reconnect.MaxAttempts)),
		voice.WithMetrics(metrics),
		voice.WithCallbacks(voice.Callbacks{
			OnStatus: func(s realtime.ConnectionStatus) {
				fmt.Printf("· connection: %s\n", s)
			},
			OnAudioState: func(s realtime.AudioState) {
				fmt.Printf("· audio: %s\n", s)
			},
			OnMessage: func(msg realtime.Message) {
				if msg.Partial {
					return
				}
				fmt.Printf("%s: %s\n", msg.Role, msg.Content)
			},
			OnError: func(err error) {
				fmt.Printf("! %v\n", err)
			},
		}),
	)
	defer mgr.Close()

	// Playback consumers would drain mgr.Output(); without an audio device
	// attached the chunks are discarded so the sink never backs up.
	go func() {
		for range mgr.Output() {
		}
	}()

	// ── HTTP server: metrics + health ─────────────────────────────────────────
	hc := health.New(
		health.Checker{Name: "backend", Check: client.Ping},
		health.Checker{Name: "session", Check: func(context.Context) error {
			if mgr.Status() == realtime.StatusError {
				return fmt.Errorf("session in error state: %v", mgr.LastError())
			}
			return nil
		}},
	)
	mux := http.NewServeMux()
	hc.Register(mux)
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: observe.Middleware(metrics)(mux),
	}

	if *autoConnect {
		if err := mgr.Connect(ctx); err != nil {
			slog.Error("initial connect failed", "err", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if cfg.Server.ListenAddr == "" {
			return nil
		}
		var err error
		if cfg.Server.TLS != nil {
			err = srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	g.Go(func() error {
		commandLoop(gctx, mgr, stop)
		return nil
	})

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// commandLoop reads interactive commands from stdin until the context ends
// or the input closes.
func commandLoop(ctx context.Context, mgr *voice.Manager, quit func()) {
	fmt.Println("commands: connect | disconnect | toggle | say <text> | interrupt | mute | unmute | status | quit")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cmd, rest, _ := strings.Cut(line, " ")

		var err error
		switch cmd {
		case "connect":
			err = mgr.Connect(ctx)
		case "disconnect":
			mgr.Disconnect()
		case "toggle":
			err = mgr.Toggle(ctx)
		case "say":
			err = mgr.SendMessage(rest)
		case "interrupt":
			err = mgr.Interrupt()
		case "mute":
			mgr.Mute(true)
		case "unmute":
			mgr.Mute(false)
		case "status":
			fmt.Printf("connection=%s audio=%s muted=%v session=%s\n",
				mgr.Status(), mgr.AudioState(), mgr.Muted(), mgr.SessionID())
			if lastErr := mgr.LastError(); lastErr != nil {
				fmt.Printf("last error: %v\n", lastErr)
			}
		case "quit", "exit":
			quit()
			return
		default:
			fmt.Printf("unknown command %q\n", cmd)
		}
		if err != nil {
			fmt.Printf("! %v\n", err)
		}
	}
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
