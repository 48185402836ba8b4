package main

import (
	"fmt"
	"os"

	flags "github.com/jessevdk/go-flags"

	"github.com/fks-ops/fks-entrypoint/pkg/entrypoint"
	"github.com/fks-ops/fks-entrypoint/pkg/logging"
	"github.com/fks-ops/fks-entrypoint/pkg/logging/zaplogging"
)

type flagOptions struct {
	LaunchSpec     string `long:"launch-spec" description:"Launch spec file path (YAML)"`
	FallbackServer bool   `long:"fallback-server" description:"Run the emergency fallback liveness server"`
	Port           int    `long:"port" description:"Port override (fallback server mode)"`
	LogLevel       string `long:"log-level" description:"Log level (debug, info, warn, error)"`
}

func logPrefix(module string) string {
	return fmt.Sprintf("module: %s , ", module)
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	passthrough, err := parser.ParseArgs(argv)
	if err != nil {
		fmt.Printf("Command line flags parsing failed: %v", err)
		os.Exit(1)
	}

	logLevel := opts.LogLevel
	if logLevel == "" {
		logLevel = os.Getenv("APP_LOG_LEVEL")
	}

	zapLogger := zaplogging.NewZapSprintfLogger(logLevel)
	defer zapLogger.Sync()

	logger := logging.NewLogger(
		logPrefix("fks-entrypoint"), logging.LogFuncs{
			Debugf: zapLogger.Debugf,
			Infof:  zapLogger.Infof,
			Warnf:  zapLogger.Warnf,
			Errorf: zapLogger.Errorf,
		})

	code := entrypoint.Run(entrypoint.RunOptions{
		LaunchSpecPath:  opts.LaunchSpec,
		FallbackServer:  opts.FallbackServer,
		Port:            opts.Port,
		PassthroughArgs: passthrough,
	}, logger)

	zapLogger.Sync()
	os.Exit(code)
}
