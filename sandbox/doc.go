// Package sandbox provides a managed execution container for shell commands.
//
// The sandbox package owns the lifecycle of one long-lived, named Docker
// container. The DockerExecutor ties together three parts:
//
//   - ImageBuilder builds the image from configured Dockerfile text when it
//     is missing, streaming build output to a BuildObserver.
//   - Lifecycle ensures the container exists and is running, recreating it
//     when it is stopped, and tears it down on request.
//   - The executor runs commands inside the container and captures combined
//     stdout and stderr.
//
// Run reports failures as typed errors (*ExecError, *LifecycleError and the
// Err* sentinels). Execute never fails: errors come back as output text.
//
// Usage:
//
//	executor, err := sandbox.NewExecutor(logger, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer executor.Close()
//	out := executor.Execute(ctx, "echo hi")
package sandbox
