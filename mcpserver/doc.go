// Package mcpserver provides the Model Context Protocol (MCP) server implementation.
//
// The mcpserver package implements an MCP-compliant server that exposes the
// sandbox as three tools:
//
//   - sandbox_execute runs a shell command in the managed container
//   - sandbox_stop removes the managed container
//   - sandbox_status reports runtime availability and container state
//
// Execution failures are reported as tool results with IsError set rather
// than protocol errors, so clients always receive readable text.
//
// The server supports both stdio and HTTP transports as configured by the
// application configuration.
//
// Usage:
//
//	server, err := mcpserver.New(config, logger, sandboxExecutor)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = server.ServeStdio() // or server.ServeHTTP()
package mcpserver