package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/proxypost-social/proxypost/governor"
	"github.com/proxypost-social/proxypost/server"
	"github.com/proxypost-social/proxypost/util/cliutil"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"golang.org/x/sync/errgroup"
	"gorm.io/plugin/opentelemetry/tracing"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "proxypost",
		Usage:   "agent-mediated social feed service",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "info|debug|warn|error",
			EnvVars: []string{"PROXYPOST_LOG_LEVEL"},
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
	}

	return app.Run(args)
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the service",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Value:   "sqlite://data/proxypost/proxypost.db",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.IntFlag{
			Name:    "max-db-connections",
			Value:   40,
			EnvVars: []string{"MAX_DB_CONNECTIONS"},
		},
		&cli.BoolFlag{
			Name:    "db-tracing",
			EnvVars: []string{"PROXYPOST_DB_TRACING"},
		},
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for the HTTP API",
			Value:   ":2510",
			EnvVars: []string{"PROXYPOST_BIND"},
		},
		&cli.IntFlag{
			Name:    "max-actions-per-day",
			Usage:   "daily action budget for each agent",
			Value:   10,
			EnvVars: []string{"PROXYPOST_MAX_ACTIONS_PER_DAY"},
		},
		&cli.IntFlag{
			Name:    "approval-threshold",
			Usage:   "autonomy level at which agent content no longer needs human approval",
			Value:   governor.DefaultApprovalThreshold,
			EnvVars: []string{"PROXYPOST_APPROVAL_THRESHOLD"},
		},
		&cli.StringFlag{
			Name:    "generator",
			Usage:   "content generator backend (mock or remote)",
			Value:   "mock",
			EnvVars: []string{"PROXYPOST_GENERATOR"},
		},
		&cli.StringFlag{
			Name:    "generator-host",
			Usage:   "base URL of an OpenAI-compatible completion API",
			EnvVars: []string{"PROXYPOST_GENERATOR_HOST"},
		},
		&cli.StringFlag{
			Name:    "generator-api-key",
			EnvVars: []string{"PROXYPOST_GENERATOR_API_KEY"},
		},
		&cli.StringFlag{
			Name:    "generator-model",
			Value:   "gpt-4o-mini",
			EnvVars: []string{"PROXYPOST_GENERATOR_MODEL"},
		},
		&cli.IntFlag{
			Name:    "generator-rate-limit",
			Usage:   "max completion requests per second",
			Value:   2,
			EnvVars: []string{"PROXYPOST_GENERATOR_RATE_LIMIT"},
		},
	},
	Action: func(cctx *cli.Context) error {
		logger, err := cliutil.SetupSlog(cctx.String("log-level"), "")
		if err != nil {
			return err
		}

		// Enable OTLP HTTP exporter
		// For relevant environment variables:
		// https://pkg.go.dev/go.opentelemetry.io/otel/exporters/otlp/otlptrace#readme-environment-variables
		// At a minimum, you need to set
		// OTEL_EXPORTER_OTLP_ENDPOINT=http://localhost:4318
		if ep := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); ep != "" {
			logger.Info("setting up trace exporter", "endpoint", ep)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			exp, err := otlptracehttp.New(ctx)
			if err != nil {
				log.Fatal("failed to create trace exporter", "error", err)
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				if err := exp.Shutdown(ctx); err != nil {
					logger.Error("failed to shutdown trace exporter", "error", err)
				}
			}()

			tp := tracesdk.NewTracerProvider(
				tracesdk.WithBatcher(exp),
				tracesdk.WithResource(resource.NewWithAttributes(
					semconv.SchemaURL,
					semconv.ServiceNameKey.String("proxypost"),
					attribute.String("env", os.Getenv("ENVIRONMENT")),         // DataDog
					attribute.String("environment", os.Getenv("ENVIRONMENT")), // Others
					attribute.Int64("ID", 1),
				)),
			)
			otel.SetTracerProvider(tp)
		}

		db, err := cliutil.SetupDatabase(cctx.String("database-url"), cctx.Int("max-db-connections"))
		if err != nil {
			return err
		}
		if cctx.Bool("db-tracing") {
			if err := db.Use(tracing.NewPlugin()); err != nil {
				return err
			}
		}

		var gen governor.Generator
		switch cctx.String("generator") {
		case "mock", "":
			gen = governor.NewMockGenerator(time.Now().UnixNano())
		case "remote":
			host := cctx.String("generator-host")
			if host == "" {
				return fmt.Errorf("remote generator requires --generator-host")
			}
			gen = governor.NewRemoteGenerator(
				host,
				cctx.String("generator-api-key"),
				cctx.String("generator-model"),
				cctx.Int("generator-rate-limit"),
			)
		default:
			return fmt.Errorf("unknown generator backend: %s", cctx.String("generator"))
		}

		srv, err := server.NewServer(db, gen, server.Config{
			MaxActionsPerDay:  cctx.Int("max-actions-per-day"),
			ApprovalThreshold: cctx.Int("approval-threshold"),
		})
		if err != nil {
			return err
		}

		signals := make(chan os.Signal, 1)
		signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

		var eg errgroup.Group
		eg.Go(func() error {
			if err := srv.RunAPI(cctx.String("bind")); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("failed to run api server: %w", err)
			}
			return nil
		})
		eg.Go(func() error {
			<-signals
			logger.Info("received shutdown signal")
			return srv.Shutdown(context.Background())
		})

		return eg.Wait()
	},
}
