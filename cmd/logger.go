package cmd

import (
	"log/slog"
	"os"

	"github.com/ThreeDotsLabs/watermill"
)

func ProvideLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})).With("service", ServiceName)
	slog.SetDefault(logger)
	return logger
}

// ProvideWatermillLogger bridges slog into the watermill router.
func ProvideWatermillLogger(logger *slog.Logger) watermill.LoggerAdapter {
	return watermill.NewSlogLogger(logger)
}
