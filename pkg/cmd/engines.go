package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/sqlcron/sqlcron/pkg/engine"
	"github.com/sqlcron/sqlcron/pkg/engine/mysql"
)

// NewEngineResolver builds the instance resolver from a JSON file mapping
// instance names to MySQL DSNs.
func NewEngineResolver(ctx context.Context, logger *slog.Logger, instancesPath string) *engine.StaticResolver {
	raw, err := os.ReadFile(instancesPath)
	if err != nil {
		panic(fmt.Errorf("failed to read instances file: %w", err))
	}

	var instances map[string]string
	if err := json.Unmarshal(raw, &instances); err != nil {
		panic(fmt.Errorf("failed to parse instances file: %w", err))
	}

	resolver := engine.NewStaticResolver()

	for name, dsn := range instances {
		eng, err := mysql.New(ctx, logger, dsn)
		if err != nil {
			panic(fmt.Errorf("failed to connect instance %q: %w", name, err))
		}

		resolver.Register(name, eng)
		logger.InfoContext(ctx, "Registered instance", "instance", name)
	}

	return resolver
}
