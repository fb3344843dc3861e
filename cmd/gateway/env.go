package main

import "os"

// Environment variables backing the command line flags.
const (
	envConfigPath = "GATEWAY_CONFIG_PATH"
	envLogLevel   = "GATEWAY_LOG_LEVEL"
	envLogFormat  = "GATEWAY_LOG_FORMAT"
)

// envDefault returns the value of key when it is set and non-empty,
// otherwise def. The boolean reports which of the two was returned.
func envDefault(key, def string) (string, bool) {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value, true
	}
	return def, false
}
