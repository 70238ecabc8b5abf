// Package config loads and validates the cdbms engine configuration.
//
// Configuration is YAML-backed with environment variable overrides
// (CDBMS_LOG_LEVEL, CDBMS_BASE_PATH, CDBMS_WORKER_POOL_SIZE, ...),
// following the same precedence order the engine's other ambient
// subsystems use: defaults, then file, then environment.
package config
