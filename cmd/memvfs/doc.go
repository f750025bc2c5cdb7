// Memvfs is an interactive shell and script runner for an in-memory
// filesystem. Run 'memvfs --help' for usage.
package main
