package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/slack-go/slack/socketmode"
	flag "github.com/spf13/pflag"

	"github.com/edgeix/peerbot/pkg/bird"
	"github.com/edgeix/peerbot/pkg/bot"
	"github.com/edgeix/peerbot/pkg/directory"
	"github.com/edgeix/peerbot/pkg/handlers"
	"github.com/edgeix/peerbot/pkg/logger"
	"github.com/edgeix/peerbot/pkg/metrics"
	"github.com/edgeix/peerbot/pkg/server"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultListenAddr     = "0.0.0.0:3020"
	defaultMetricsAddr    = "0.0.0.0:0"
	defaultFetchTimeout   = 10 * time.Second
	defaultMaxConcurrency = 8
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	listenAddrFlag := flag.String("listen-addr", defaultListenAddr, "HTTP server listen address")
	metricsAddrFlag := flag.String("metrics-addr", defaultMetricsAddr, "Address to listen on for prometheus metrics")
	fetchTimeoutFlag := flag.Duration("fetch-timeout", defaultFetchTimeout, "Per-request timeout for route server fetches")
	maxConcurrencyFlag := flag.Int("max-concurrency", defaultMaxConcurrency, "Maximum concurrent route server fetches per refresh")
	cacheTTLFlag := flag.Duration("cache-ttl", 0, "Snapshot cache TTL; 0 refreshes on every lookup")
	flag.Parse()

	// Load .env file. godotenv does not override existing env vars, so
	// process env and explicit exports take precedence.
	_ = godotenv.Load()

	// Override flags with environment variables if set
	if envCacheTTL := os.Getenv("CACHE_TTL"); envCacheTTL != "" {
		if d, err := time.ParseDuration(envCacheTTL); err == nil {
			*cacheTTLFlag = d
		}
	}
	if envFetchTimeout := os.Getenv("FETCH_TIMEOUT"); envFetchTimeout != "" {
		if d, err := time.ParseDuration(envFetchTimeout); err == nil {
			*fetchTimeoutFlag = d
		}
	}

	log := logger.New(*verboseFlag)

	log.Info("peerbot starting",
		"version", version,
		"commit", commit,
		"cache_ttl", cacheTTLFlag.String(),
		"fetch_timeout", fetchTimeoutFlag.String(),
	)

	// Initialize Sentry for error tracking (no-op if DSN not set).
	if sentryDSN := os.Getenv("SENTRY_DSN"); sentryDSN != "" {
		sentryEnv := os.Getenv("SENTRY_ENVIRONMENT")
		if sentryEnv == "" {
			sentryEnv = "development"
		}
		release := version
		if commit != "none" {
			release = version + "-" + commit
		}
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         sentryDSN,
			Environment: sentryEnv,
			Release:     release,
		}); err != nil {
			log.Warn("sentry initialization failed", "error", err)
		} else {
			log.Info("sentry initialized", "environment", sentryEnv, "release", release)
			defer sentry.Flush(2 * time.Second)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigCh
		log.Info("received signal", "signal", sig.String())
		cancel()
	}()

	var metricsServerErrCh = make(chan error, 1)
	if *metricsAddrFlag != "" {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		go func() {
			listener, err := net.Listen("tcp", *metricsAddrFlag)
			if err != nil {
				log.Error("failed to start prometheus metrics server listener", "error", err)
				metricsServerErrCh <- err
				return
			}
			log.Info("prometheus metrics server listening", "address", listener.Addr().String())
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.Serve(listener, mux); err != nil {
				log.Error("prometheus metrics server failed", "error", err)
				metricsServerErrCh <- err
			}
		}()
	}

	fetcher := bird.NewClient(bird.ClientConfig{RequestTimeout: *fetchTimeoutFlag})

	dir, err := directory.New(directory.Config{
		Logger:         log,
		Clock:          clockwork.NewRealClock(),
		Fetcher:        fetcher,
		Endpoints:      directory.EndpointsFromEnv(),
		MaxConcurrency: *maxConcurrencyFlag,
		CacheTTL:       *cacheTTLFlag,
	})
	if err != nil {
		return fmt.Errorf("failed to create route server directory: %w", err)
	}

	// Slack bot is optional: skipped entirely without a bot token.
	var slackEvents http.HandlerFunc
	var eventHandler *bot.EventHandler
	if botToken := os.Getenv("SLACK_BOT_TOKEN"); botToken != "" {
		appToken := os.Getenv("SLACK_APP_TOKEN")
		slackClient := bot.NewClient(botToken, appToken, log)
		if _, err := slackClient.Initialize(ctx); err != nil {
			log.Warn("slack auth test failed, continuing anyway", "error", err)
		}

		processor := bot.NewProcessor(dir, log)
		processor.StartCleanup(ctx)

		eventHandler = bot.NewEventHandler(slackClient, processor, log)
		eventHandler.StartCleanup(ctx)

		if appToken != "" {
			// Socket mode.
			client := socketmode.New(slackClient.API())
			go func() {
				if err := client.Run(); err != nil {
					log.Error("slack socket mode client failed", "error", err)
				}
			}()
			go func() {
				if err := eventHandler.HandleSocketMode(ctx, client); err != nil && ctx.Err() == nil {
					log.Error("slack socket mode handler stopped", "error", err)
				}
			}()
			log.Info("slack bot started in socket mode")
		} else {
			// HTTP events mode, mounted on the API server.
			signingSecret := os.Getenv("SLACK_SIGNING_SECRET")
			if signingSecret == "" {
				return fmt.Errorf("SLACK_SIGNING_SECRET is required for slack HTTP events mode")
			}
			eventHandler.SetSigningSecret(signingSecret)
			slackEvents = eventHandler.HandleHTTP
			log.Info("slack bot started in HTTP events mode", "route", "/slack/events")
		}
	} else {
		log.Info("SLACK_BOT_TOKEN not set, slack bot disabled")
	}

	srv, err := server.New(server.Config{
		Logger:            log,
		ListenAddr:        *listenAddrFlag,
		ReadHeaderTimeout: 30 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		VersionInfo: handlers.VersionInfo{
			Version: version,
			Commit:  commit,
			Date:    date,
		},
		Directory:   dir,
		SlackEvents: slackEvents,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.Run(ctx); err != nil {
			serverErrCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down", "reason", ctx.Err())
	case err := <-serverErrCh:
		log.Error("server error causing shutdown", "error", err)
		runErr = err
	case err := <-metricsServerErrCh:
		log.Error("metrics server error causing shutdown", "error", err)
		runErr = err
	}

	// Drain in-flight slack lookups before exiting.
	if eventHandler != nil {
		wait := eventHandler.StopAcceptingNew()
		done := make(chan struct{})
		go func() {
			wait()
			close(done)
		}()
		select {
		case <-done:
			log.Info("slack bot drained gracefully")
		case <-time.After(30 * time.Second):
			log.Warn("slack bot drain timed out")
		}
	}

	return runErr
}
