package telemetry

import (
	"context"
	"os"
	"testing"

	"adbprojects/lib/configutil"
)

var setupTestEnvironments = map[string]bool{}

// SetupForTesting bootstraps slog and, when a telemetry.json5 is
// reachable from the test's working directory, the otel providers.
// It is safe to call once per package; repeated calls are no-ops.
func SetupForTesting(t testing.TB, serviceName string) func() {
	if setupTestEnvironments[serviceName] {
		return func() {}
	}
	setupTestEnvironments[serviceName] = true

	InitSlog(true)

	tel, err := SetupFromEnv(context.Background(), serviceName)
	if os.IsNotExist(err) {
		// no collector configured; spans go to the default no-op provider
		return func() {}
	}
	if err != nil {
		t.Fatal(err)
	}
	return func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
}

// SetupFromEnv searches up the filesystem from the cwd for a file
// called telemetry.json5 and, once found, uses it as the config for
// Setup. Returns os.ErrNotExist when no config is present.
func SetupFromEnv(ctx context.Context, serviceName string) (Telemetry, error) {
	config, err := configutil.ReadRecursively[Config]("telemetry.json5")
	if err != nil {
		return Telemetry{}, err
	}
	return Setup(ctx, serviceName, config)
}
