// Command screenshared is the daemon entrypoint: it loads
// configuration, wires the capture engine and listener, and runs until
// a shutdown signal arrives.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/care/screenshare/internal/capture"
	"github.com/care/screenshare/internal/config"
	"github.com/care/screenshare/internal/inputinjector"
	"github.com/care/screenshare/internal/listener"
	"github.com/care/screenshare/internal/ports"
	"github.com/care/screenshare/internal/screensource"
	"github.com/care/screenshare/internal/screensource/gstsource"
	"github.com/care/screenshare/internal/secretstore"
	"github.com/care/screenshare/internal/session"
)

const defaultConfigPath = "config/screenshare.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Warn("config: using defaults", "reason", err, "path", *configPath)
		cfg = config.Default()
	}

	screenSize, source, err := buildScreenSource(cfg.Capture)
	if err != nil {
		slog.Error("failed to build screen source", "error", err)
		os.Exit(1)
	}

	engine, err := capture.Initialize(source, screenSize)
	if err != nil {
		slog.Error("failed to initialize capture engine", "error", err)
		os.Exit(1)
	}
	slog.Info("capture engine initialized",
		"profile", engine.Profile().Name,
		"real_width", screenSize.Width,
		"real_height", screenSize.Height,
	)

	sessionPorts := session.Ports{
		Injector: inputinjector.New(),
		Command:  noopCommandPort{},
		Upload:   noopUploadPort{},
		Chat:     noopChatPort{},
		UI:       noopUIPort{},
		Secrets:  secretstore.New(cfg.SecretStore.APIKeyEnvVar),
	}

	l := listener.New(engine, func(conn session.Conn) *session.Session {
		return session.New(conn, engine, sessionPorts)
	})

	if err := l.Start(cfg.Listener.Address, cfg.Listener.Port); err != nil {
		slog.Error("failed to start listener", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
	}

	shutdownTimeout := time.Duration(cfg.ShutdownTimeout()) * time.Second
	slog.Info("shutting down", "timeout", shutdownTimeout)

	l.Stop()
	capture.Shutdown()

	slog.Info("screenshared stopped")
}

// buildScreenSource selects the capture backend named in config. "mock"
// runs without a display server; "x11" and "pipewire" require
// GStreamer and a real display.
func buildScreenSource(cfg config.CaptureConfig) (screensource.Size, screensource.Source, error) {
	switch cfg.Backend {
	case "x11", "pipewire":
		backend := gstsource.BackendX11
		if cfg.Backend == "pipewire" {
			backend = gstsource.BackendPipewire
		}
		size := screensource.Size{Width: 1920, Height: 1080}
		src, err := gstsource.New(gstsource.Config{
			Backend:    backend,
			Width:      size.Width,
			Height:     size.Height,
			DisplayNum: cfg.DisplayNum,
		})
		if err != nil {
			return screensource.Size{}, nil, err
		}
		return size, src, nil
	default:
		size := screensource.Size{Width: 1920, Height: 1080}
		return size, screensource.NewMockSource(size), nil
	}
}

// The editor command layer, file-upload handling, AI-chat fallback,
// and webview UI are external collaborators named by interface only;
// these no-op adapters let the daemon run standalone until a host
// process wires in real ones.

type noopCommandPort struct{}

func (noopCommandPort) HandleCommand(text string, _ any) error {
	slog.Debug("command port: no host integration wired, dropping command", "text", text)
	return nil
}

type noopUploadPort struct{}

func (noopUploadPort) Handle(data []byte, _ any) error {
	slog.Debug("upload port: no host integration wired, dropping upload", "bytes", len(data))
	return nil
}

type noopChatPort struct{}

func (noopChatPort) Chat(text, apiKey string) (string, error) {
	return "", ports.ErrNoChatBackend
}

type noopUIPort struct{}

func (noopUIPort) PostMessage(message map[string]any) error {
	slog.Debug("editor ui port: no host integration wired, dropping message", "message", message)
	return nil
}
