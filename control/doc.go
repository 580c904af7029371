// Package control
// Author: momentics <momentics@gmail.com>
//
// Ambient runtime layer for hioload-pw: configuration loading, structured
// logging, Prometheus metrics and debug probes.
//
// Provides:
//   - Config defaults, YAML file overlay and HIOLOAD_PW_* environment overrides
//   - slog logger construction from configured level and format
//   - Metrics shared by loop runtimes, bridges and the dispatch queue
//   - Debug probes exposing per-runtime state snapshots
package control
