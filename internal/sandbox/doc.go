// Package sandbox runs untrusted source code with bounded time and output.
// Each execution gets a private scratch directory holding the source file and,
// for compiled languages, the built binary; the directory is removed on every
// exit path. Process launching is delegated to a Runner so the same
// compile/run protocol works on the host (ProcessRunner) or inside containers
// (DockerRunner).
package sandbox
