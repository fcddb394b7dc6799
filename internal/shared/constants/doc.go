// Package constants centralizes defaults shared across the CLI and the API.
//
// File permissions, scan parallelism limits and server timeouts live here so
// cmd/ and internal/ packages can share them without import cycles.
package constants
