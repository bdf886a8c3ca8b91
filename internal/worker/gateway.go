package worker

import (
	"context"
	"errors"
	"log/slog"
	"os"
)

// ResolveToken reads the secret named by envVar from the environment.
// Provisioning the secret itself is outside this core.
func ResolveToken(envVar string) (string, error) {
	if envVar == "" {
		return "", errors.New("worker: token env var name is empty")
	}
	tok := os.Getenv(envVar)
	if tok == "" {
		return "", errors.New("worker: environment variable " + envVar + " is not set")
	}
	return tok, nil
}

// LogGateway stands in for a real messaging-platform client. It satisfies
// Gateway so the lifecycle can be exercised without platform credentials.
type LogGateway struct {
	logger *slog.Logger
}

func NewLogGateway(logger *slog.Logger) *LogGateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogGateway{logger: logger}
}

func (g *LogGateway) Connect(_ context.Context, token string) error {
	g.logger.Info("gateway session opened", "token_len", len(token))
	return nil
}

func (g *LogGateway) Close() error {
	g.logger.Info("gateway session closed")
	return nil
}
