package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/aluiziolira/go-scrape-templates/api"
	"github.com/aluiziolira/go-scrape-templates/config"
	"github.com/aluiziolira/go-scrape-templates/models"
	"github.com/aluiziolira/go-scrape-templates/monitoring"
	"github.com/aluiziolira/go-scrape-templates/notify"
	"github.com/aluiziolira/go-scrape-templates/pipeline"
	"github.com/aluiziolira/go-scrape-templates/popup"
	"github.com/aluiziolira/go-scrape-templates/scraper"
)

// session is a popup.Session that may hold a browser or other resources.
type session interface {
	popup.Session
	Close() error
}

type nopCloser struct{ popup.Session }

func (nopCloser) Close() error { return nil }

func main() {
	os.Exit(run())
}

func run() int {
	copied, envErr := config.LoadEnvFile(".env", ".example.env")

	cfg := config.DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid environment: %v\n", err)
		return 1
	}

	flag.StringVar(&cfg.Mode, "mode", cfg.Mode, "Session mode: launch, attach, http, or file")
	flag.StringVar(&cfg.TargetURL, "url", cfg.TargetURL, "Page to open in launch and http modes")
	flag.StringVar(&cfg.EligiblePrefix, "eligible", cfg.EligiblePrefix, "URL fragment a tab must contain to be exported")
	flag.StringVar(&cfg.RemoteURL, "remote", cfg.RemoteURL, "Chrome remote debugging URL for attach mode")
	flag.StringVar(&cfg.ChromePath, "chrome", cfg.ChromePath, "Chrome binary for launch mode (auto-detected when empty)")
	flag.BoolVar(&cfg.Headless, "headless", cfg.Headless, "Run the launched browser headless")
	flag.StringVar(&cfg.HTMLFile, "html", cfg.HTMLFile, "Saved page to export from in file mode")
	flag.StringVar(&cfg.PageURL, "page-url", cfg.PageURL, "URL the saved page was taken from (file mode)")
	flag.StringVar(&cfg.OutputDir, "out", cfg.OutputDir, "Download directory")
	flag.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Timeout for loading the page and running the extractor")
	flag.DurationVar(&cfg.RenderWait, "render-wait", cfg.RenderWait, "Delay after load before extracting (launch mode)")
	flag.StringVar(&cfg.UserAgent, "user-agent", cfg.UserAgent, "User agent for http mode")
	flag.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Enable verbose logging")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	flag.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "API listen address in serve mode")
	flag.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Also write JSON logs to this rotated file")
	serve := flag.Bool("serve", false, "Serve the HTTP API instead of exporting once")

	flag.Parse()

	logger, level, closeLog := newLogger(cfg.Verbose, cfg.LogFile)
	defer closeLog()
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if envErr != nil {
		slog.Warn("could not load .env", slog.Any("error", envErr))
	} else if copied {
		slog.Info("created .env from .example.env")
	}

	if cfg.Mode == config.ModeFile && cfg.PageURL == "" {
		cfg.PageURL = cfg.TargetURL
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		return 1
	}

	sess, err := newSession(cfg)
	if err != nil {
		slog.Error("initialising session", slog.Any("error", err))
		return 1
	}
	defer func() {
		if err := sess.Close(); err != nil {
			slog.Error("close session", slog.Any("error", err))
		}
	}()

	metrics := monitoring.NewMetrics()
	notifier := notify.NewConsole(os.Stderr)
	exporter := pipeline.NewExporter(pipeline.NewFileDownloader(cfg.OutputDir), notifier, pipeline.WithMetrics(metrics))
	controller := popup.NewController(sess, exporter, notifier,
		popup.WithEligiblePrefix(cfg.EligiblePrefix),
		popup.WithMetrics(metrics),
		popup.WithLogger(logger),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: metrics.Handler(),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}
	defer shutdown(metricsServer)

	if *serve {
		if err := runServer(ctx, cfg, controller, metrics, logger); err != nil {
			slog.Error("api server failed", slog.Any("error", err))
			return 1
		}
		return 0
	}

	slog.Info("starting export",
		slog.String("mode", cfg.Mode),
		slog.String("output_dir", cfg.OutputDir),
	)

	env, err := controller.CheckEnvironment(ctx)
	if err != nil {
		slog.Error("checking environment", slog.String("category", scraper.ErrorTypeLabel(err)), slog.Any("error", err))
		notifier.Error(notify.MsgFetchFailed)
		return 1
	}
	slog.Info("active tab",
		slog.String("url", env.Tab.URL),
		slog.String("title", env.Tab.Title),
		slog.Bool("eligible", env.Eligible),
	)

	result, err := controller.Export(ctx)
	if err != nil {
		return 1
	}
	printSummary(result)
	if result.Status == models.StatusIneligible {
		return 2
	}
	return 0
}

func newSession(cfg *config.Config) (session, error) {
	switch cfg.Mode {
	case config.ModeLaunch:
		return scraper.NewBrowserSession(cfg), nil
	case config.ModeAttach:
		return scraper.NewAttachSession(cfg), nil
	case config.ModeHTTP:
		s, err := scraper.NewHTTPSession(cfg)
		if err != nil {
			return nil, err
		}
		return nopCloser{s}, nil
	case config.ModeFile:
		return nopCloser{scraper.NewFileSession(cfg.HTMLFile, cfg.PageURL)}, nil
	default:
		return nil, fmt.Errorf("unsupported mode: %s", cfg.Mode)
	}
}

func runServer(ctx context.Context, cfg *config.Config, controller *popup.Controller, metrics *monitoring.Metrics, logger *slog.Logger) error {
	srv := api.NewServer(cfg, controller, metrics, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()
	slog.Info("api server listening", slog.String("addr", cfg.ListenAddr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		slog.Info("shutdown signal received, waiting for in-flight exports to finish")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func shutdown(srv *http.Server) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("metrics server shutdown failed", slog.Any("error", err))
	}
}

func printSummary(result *models.ExportResult) {
	separator := strings.Repeat("-", 50)
	fmt.Println("\n" + separator)
	fmt.Println("Export complete")
	fmt.Printf("  Status:        %s\n", result.Status)
	fmt.Printf("  Tab:           %s\n", result.Tab.URL)
	fmt.Printf("  Records:       %d\n", result.Count)
	if result.Location != "" {
		fmt.Printf("  File:          %s\n", result.Location)
		fmt.Printf("  Size:          %d bytes\n", result.Bytes)
	}
	fmt.Printf("  Duration:      %v\n", result.Duration)
	fmt.Println(separator)
}

func newLogger(verbose bool, logFile string) (*slog.Logger, *slog.LevelVar, func()) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	closeLog := func() {}

	var handler slog.Handler
	switch {
	case logFile != "":
		rotator := &lumberjack.Logger{
			Filename:  logFile,
			MaxSize:   200,
			LocalTime: true,
			Compress:  true,
		}
		closeLog = func() { rotator.Close() }
		handler = slog.NewJSONHandler(io.MultiWriter(os.Stdout, rotator), opts)
	case isTerminal(os.Stdout):
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level, closeLog
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
