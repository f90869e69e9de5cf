package logger

import (
	"log/slog"

	gethlog "github.com/ethereum/go-ethereum/log"
	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
)

// InstallSlog makes z the backend of slog.Default and of go-ethereum's logger.
func InstallSlog(z *zap.Logger) *slog.Logger {
	handler := zapslog.NewHandler(z.Core(), zapslog.WithName("slog"))
	l := slog.New(handler)
	slog.SetDefault(l)
	gethlog.SetDefault(gethlog.NewLogger(handler))
	return l
}
