// Package main is the entry point for the Shellbox MCP server.
//
// The Shellbox server keeps one long-lived Docker container and runs shell
// commands inside it on behalf of MCP clients. The backing image is built on
// demand from a configured Dockerfile and a host directory is mounted at /data.
// The server supports both stdio and HTTP transports.
//
// The application uses Uber's fx framework for dependency injection and lifecycle
// management, with zap for structured logging and viper for configuration.
package main

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/isdmx/shellbox/config"
	"github.com/isdmx/shellbox/logger"
	"github.com/isdmx/shellbox/mcpserver"
	"github.com/isdmx/shellbox/sandbox"
)

func main() {
	app := fx.New(
		// Provide dependencies
		fx.Provide(
			// Config
			config.New,

			// Logger with configuration
			logger.NewFromConfig,

			// Docker-backed sandbox executor
			sandbox.NewExecutor,

			// MCP Server
			mcpserver.New,
		),

		fx.Invoke(registerSandboxHooks),

		// Start the appropriate transport based on config
		fx.Invoke(
			func(cfg *config.Config, log *zap.Logger, server *mcpserver.MCPServer, shutdowner fx.Shutdowner) {
				serve := server.ServeHTTP
				switch cfg.Server.Transport {
				case "stdio":
					serve = server.ServeStdio
				case "http":
				default:
					panic("unsupported transport: " + cfg.Server.Transport)
				}

				go func() {
					if err := serve(); err != nil {
						log.Error("MCP server stopped", zap.Error(err))
						_ = shutdowner.Shutdown(fx.ExitCode(1))
						return
					}
					// stdio returns once the client closes stdin
					_ = shutdowner.Shutdown()
				}()
			},
		),

		// Use the application logger for fx logs
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)

	// Start the application
	app.Run()
}

// registerSandboxHooks tears the sandbox down with the application
func registerSandboxHooks(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, executor sandbox.SandboxExecutor) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if !executor.IsRuntimeAvailable(ctx) {
				log.Warn("container runtime not reachable, commands will fail until it is available")
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cfg.Sandbox.StopOnShutdown {
				if err := executor.Stop(ctx, true); err != nil {
					log.Error("failed to stop sandbox container", zap.Error(err))
				}
			}
			return executor.Close()
		},
	})
}
