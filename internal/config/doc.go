// Package config provides configuration types for the gateway: the Options
// consumed by a session and the CLI Settings loaded from flags and the
// environment.
package config
