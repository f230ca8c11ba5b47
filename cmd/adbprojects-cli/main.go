package main

import (
	"adbprojects/cmd/adbprojects-cli/commands"
	"adbprojects/lib/serviceutil"
	"adbprojects/lib/telemetry"
)

func main() {
	ctx := serviceutil.SignalContext()
	telemetry.SetupFromEnv(ctx, "adbprojects-cli")
	commands.ExecuteContext(ctx)
}
