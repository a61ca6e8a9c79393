// Package control
// Author: momentics <momentics@gmail.com>
//
// Run configuration and event counters for executor runs driven from the
// command line.
//
// Provides:
//   - YAML configuration with defaults and validation
//   - Frame picker selection by name
//   - Event counters registered as global executor handlers
package control
