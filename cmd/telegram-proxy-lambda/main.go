package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"telegram-proxy/internal/app"
	"telegram-proxy/internal/config"
	"telegram-proxy/internal/edge"
	"telegram-proxy/internal/handler"
)

// Set by goreleaser ldflags.
var version = "dev"

func main() {
	// Lambda passes no arguments; kong still picks up CONFIG_PATH, LOG_LEVEL
	// and friends from the environment.
	var cli config.CLI
	kong.Parse(&cli,
		kong.Name("telegram-proxy-lambda"),
		kong.Description("Serverless entrypoint for the Telegram Bot API proxy."),
	)

	var adapter *edge.Adapter
	fxApp := fx.New(
		fx.Supply(&cli, handler.Version(version)),
		app.Module,
		fx.Provide(func(e *echo.Echo, logger *slog.Logger) *edge.Adapter {
			return edge.NewAdapter(e, logger)
		}),
		fx.Populate(&adapter),
	)
	if err := fxApp.Start(context.Background()); err != nil {
		slog.Error("start", "err", err)
		os.Exit(1)
	}

	lambda.Start(adapter.Handle)
}
