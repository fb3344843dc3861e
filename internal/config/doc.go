// Package config provides configuration types and loading for the
// energy gateway.
//
// Configuration is a YAML document in apiVersion/kind/metadata/spec form.
// ${VAR} and ${VAR:-default} references are substituted from the
// environment before parsing. ${VAR:?message} fails loading when VAR is
// unset or empty, and $$ produces a literal dollar sign. When no
// file is given the embedded default configuration is used, which reads
// the downstream base URLs from DT_URL, FORECAST_URL, EOP_URL and ENG_URL.
//
//	cfg, err := config.LoadConfig(path)
//	if err != nil {
//	    return err
//	}
//	if err := config.ValidateConfig(cfg); err != nil {
//	    return err
//	}
//
// A Watcher reloads the file on change and hands the new configuration to
// a callback. Routes, services and backends are fixed for the lifetime of
// the process; RestartRequired reports which changed sections need a
// restart to take effect.
package config
