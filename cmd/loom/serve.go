package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/loom-lm/loom/internal/api"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
		rps         float64
		maxTokens   int64
		temperature float64
		topK        int64
		topP        float64
		seed        int64
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve completions over HTTP",
		Flags: append(append(modelFlags(), loggingFlags()...),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read header timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			&cli.Float64Flag{
				Name:        "rps",
				Usage:       "max completion requests per second (0 disables limiting)",
				Value:       4,
				Destination: &rps,
			},
			&cli.Int64Flag{
				Name:        "max-tokens",
				Usage:       "default generation budget",
				Value:       64,
				Destination: &maxTokens,
			},
			&cli.Float64Flag{
				Name:        "temperature",
				Usage:       "default sampling temperature",
				Value:       1.0,
				Destination: &temperature,
			},
			&cli.Int64Flag{
				Name:        "top-k",
				Usage:       "default top-k (0 disables)",
				Destination: &topK,
			},
			&cli.Float64Flag{
				Name:        "top-p",
				Usage:       "default nucleus threshold",
				Value:       1.0,
				Destination: &topP,
			},
			&cli.Int64Flag{
				Name:        "seed",
				Usage:       "default sampling seed",
				Value:       42,
				Destination: &seed,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			fileCfg := LoadConfig()
			applyModelConfig(cmd, fileCfg)
			applyServeConfig(cmd, fileCfg, &addr)
			log := buildLogger()

			m, err := buildModel()
			if err != nil {
				return err
			}

			server := api.NewServer(m, api.Defaults{
				MaxTokens:   int(maxTokens),
				Temperature: float32(temperature),
				TopP:        float32(topP),
				TopK:        int(topK),
				Seed:        seed,
			}, rps, log)

			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)

			log.Info("starting server", "address", addr)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
