// Package config provides application configuration management.
//
// The config package handles loading and validation of the application's
// configuration from YAML files and SHELLBOX_ environment variables. It covers
// server transport settings, the managed sandbox container (Dockerfile, image
// and container names, host data directory, timeouts) and logging.
//
// Usage:
//
//	cfg, err := config.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Sandbox container: %s\n", cfg.Sandbox.ContainerName)
package config
