// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

/*
Package config loads Fleetvault configuration with koanf.

# Configuration Sources

Sources are layered, later ones win:

 1. Built-in defaults (defaultConfig, loaded through structs.Provider)
 2. An optional YAML file: $CONFIG_PATH, else the first of DefaultConfigPaths
 3. Environment variables listed in envMappings

Unknown environment variables are ignored. List settings (CORS_ORIGINS,
SCANNER_HOSTS, FORCE_DEVICES) accept comma separated values.

# Sections

  - logging: level, format, caller
  - server: status API listen address, timeouts, CORS and rate limit
  - registry: the node's device registry and its circuit breaker
  - scanner: fallback network probe
  - scheduler: cycle interval, worker pool, job timeout, recovery policy
  - backup: mode, local directories, rsync and ssh settings, forced devices
  - mirror: MariaDB credentials and copy sizes
  - history: badger run history
  - cache: file listing and manifest cache lifetimes

# Example

	logging:
	  level: debug
	backup:
	  mode: unified
	  results_dir: /ethoscope_data/results
	  force_devices: [ETHOSCOPE_007, ETHOSCOPE_012]

Load validates the result; a configuration that fails Validate is never
returned.
*/
package config
