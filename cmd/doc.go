// Package cmd implements the command-line interface of dMirror. Every command
// opens the configured store, waits until all collections are loaded into memory
// and flushes pending writes before it exits.
//
// The package is organized into several subpackages:
//
//   - collection: Commands for collection operations (insert, get, update, match, join, etc.)
//   - serve: Command serving a store over the JSON HTTP API of rpc/http
//   - util: Shared utilities for configuration, logging and opening stores (internal use)
//
// See dmirror -help for a list of all commands.
package cmd
