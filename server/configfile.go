// File: server/configfile.go
//
// Optional YAML overlay for Config, additive to the CLI flags defined in
// cmd/rmbtd: a config file may set any of the same fields under a top-level
// rmbtd key, and flags explicitly set on the command line take precedence
// field-by-field over the file.
package server

import (
	"os"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config's flag-settable fields with yaml tags, per
// §6a. Durations are left as strings so the file can use "60s"-style
// values instead of raw nanoseconds.
type fileConfig struct {
	Rmbtd struct {
		Listen         []string `yaml:"listen"`
		ListenTLS      []string `yaml:"listen_tls"`
		Cert           string   `yaml:"cert"`
		Key            string   `yaml:"key"`
		Workers        int      `yaml:"workers"`
		User           string   `yaml:"user"`
		Daemonize      bool     `yaml:"daemonize"`
		Debug          bool     `yaml:"debug"`
		ForceWebSocket bool     `yaml:"force_websocket"`
		LegacyVersion  string   `yaml:"legacy_version"`
	} `yaml:"rmbtd"`
}

// LoadConfigFile reads a YAML overlay at path and applies it onto base,
// field-by-field, only where base still holds its zero value or, for the
// listen addresses, worker count and version, its DefaultConfig value (the
// flag.Parse call that built base has already recorded explicit CLI
// overrides by the time this runs).
func LoadConfigFile(path string, base *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var fc fileConfig
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return err
	}

	defListen := DefaultConfig().ListenAddrs
	listenIsDefault := len(base.ListenAddrs) == 1 && base.ListenAddrs[0] == defListen[0]
	if len(base.ListenAddrs) == 0 || (listenIsDefault && len(fc.Rmbtd.Listen) > 0) {
		base.ListenAddrs = fc.Rmbtd.Listen
	}
	if len(base.TLSListenAddrs) == 0 {
		base.TLSListenAddrs = fc.Rmbtd.ListenTLS
	}
	if base.CertPath == "" {
		base.CertPath = fc.Rmbtd.Cert
	}
	if base.KeyPath == "" {
		base.KeyPath = fc.Rmbtd.Key
	}
	if fc.Rmbtd.Workers != 0 && base.Workers == DefaultConfig().Workers {
		base.Workers = fc.Rmbtd.Workers
	}
	if base.User == "" {
		base.User = fc.Rmbtd.User
	}
	if !base.Daemonize {
		base.Daemonize = fc.Rmbtd.Daemonize
	}
	if !base.Debug {
		base.Debug = fc.Rmbtd.Debug
	}
	if !base.ForceWebSocket {
		base.ForceWebSocket = fc.Rmbtd.ForceWebSocket
	}
	if fc.Rmbtd.LegacyVersion != "" && base.Version == DefaultConfig().Version {
		base.Version = fc.Rmbtd.LegacyVersion
	}
	return nil
}
