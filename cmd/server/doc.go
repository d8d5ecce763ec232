// Package main is the entry point for the Shellbox MCP server.
//
// The Shellbox server keeps one long-lived Docker container and runs shell
// commands inside it on behalf of MCP clients. The backing image is built on
// demand from a configured Dockerfile and a host directory is mounted at /data.
// The server supports both stdio and HTTP transports.
//
// Configuration is read from config.yaml in the working directory (or
// ./config) and SHELLBOX_* environment variables, for example
// SHELLBOX_SANDBOX_CONTAINER_NAME.
//
// The application uses Uber's fx framework for dependency injection and lifecycle
// management, with zap for structured logging and viper for configuration.
package main
