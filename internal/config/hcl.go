// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2/hclsimple"

	"github.com/VVelox/meer/internal/errors"
)

// Load reads, decodes, defaults, and validates an HCL config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindIO, "failed to read config file")
	}
	return LoadBytes(path, data)
}

// LoadBytes decodes a config from memory. The filename only feeds
// diagnostics.
func LoadBytes(filename string, data []byte) (*Config, error) {
	var cfg Config
	if err := hclsimple.Decode(filename, data, nil, &cfg); err != nil {
		return nil, errors.Wrap(err, errors.KindConfig, "failed to decode config")
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.SchemaVersion == "" {
		c.SchemaVersion = "1.0"
	}
	if c.Core == nil {
		c.Core = &Core{}
	}
	if c.Core.PayloadBufferSize == 0 {
		c.Core.PayloadBufferSize = 1 << 20
	}
	if c.Core.StatsInterval == 0 {
		c.Core.StatsInterval = 60
	}
	if c.Core.LogLevel == "" {
		c.Core.LogLevel = "info"
	}

	if c.Input == nil {
		c.Input = &Input{}
	}
	if c.Input.Type == "" {
		c.Input.Type = "file"
	}
	if c.Input.SpoolFile == "" {
		c.Input.SpoolFile = "/var/log/suricata/alert.json"
	}
	if c.Input.WaldoFile == "" {
		c.Input.WaldoFile = "/var/lib/meer/meer.waldo"
	}
	if c.Input.SocketPath == "" {
		c.Input.SocketPath = "/var/run/meer/meer.socket"
	}

	if c.SQL != nil {
		if c.SQL.Driver == "" {
			c.SQL.Driver = "sqlite"
		}
		if c.SQL.Path == "" {
			c.SQL.Path = "/var/lib/meer/meer.db"
		}
		if c.SQL.SensorName == "" {
			name := c.Core.Hostname
			if c.Core.Interface != "" {
				name += ":" + c.Core.Interface
			}
			c.SQL.SensorName = name
		}
		c.SQL.Alerts = defaultTrue(c.SQL.Alerts)
	}

	if c.Redis != nil {
		if c.Redis.Server == "" {
			c.Redis.Server = "127.0.0.1"
		}
		if c.Redis.Port == 0 {
			c.Redis.Port = 6379
		}
		if c.Redis.Mode == "" {
			c.Redis.Mode = "lpush"
		}
		if c.Redis.Key == "" {
			c.Redis.Key = "suricata"
		}
		if c.Redis.Routing == nil {
			c.Redis.Routing = []string{"flow", "dns", "http", "tls", "ssh", "smb", "fileinfo"}
		}
		c.Redis.Alerts = defaultTrue(c.Redis.Alerts)
	}

	if c.Elasticsearch != nil {
		if c.Elasticsearch.URL == "" {
			c.Elasticsearch.URL = "http://127.0.0.1:9200"
		}
		if c.Elasticsearch.Index == "" {
			c.Elasticsearch.Index = "suricata"
		}
		if c.Elasticsearch.NDPIndex == "" {
			c.Elasticsearch.NDPIndex = "ndp"
		}
		if c.Elasticsearch.Batch == 0 {
			c.Elasticsearch.Batch = 100
		}
		if c.Elasticsearch.FlushInterval == 0 {
			c.Elasticsearch.FlushInterval = 5
		}
		if c.Elasticsearch.Routing == nil {
			c.Elasticsearch.Routing = []string{"flow", "dns", "http", "tls", "ssh", "smb", "fileinfo", "stats"}
		}
		c.Elasticsearch.Alerts = defaultTrue(c.Elasticsearch.Alerts)
	}

	if c.Pipe != nil {
		if c.Pipe.Path == "" {
			c.Pipe.Path = "/var/run/meer/meer.pipe"
		}
		if c.Pipe.Size == 0 {
			c.Pipe.Size = 1 << 20
		}
		if c.Pipe.Routing == nil {
			c.Pipe.Routing = []string{"alert", "flow", "dns", "http", "tls"}
		}
		c.Pipe.Alerts = defaultTrue(c.Pipe.Alerts)
	}

	if c.File != nil {
		if c.File.Path == "" {
			c.File.Path = "/var/log/meer/meer.json"
		}
		if c.File.FlushInterval == 0 {
			c.File.FlushInterval = 1
		}
		if c.File.Routing == nil {
			c.File.Routing = []string{"alert"}
		}
		c.File.Alerts = defaultTrue(c.File.Alerts)
	}

	if c.NDP != nil {
		if c.NDP.Routing == nil {
			c.NDP.Routing = []string{"flow", "fileinfo", "tls", "dns", "ssh", "http", "smb", "ftp"}
		}
		if c.NDP.SMBCommands == nil {
			c.NDP.SMBCommands = []string{"SMB2_COMMAND_CREATE", "SMB2_COMMAND_WRITE"}
		}
		if c.NDP.FTPCommands == nil {
			c.NDP.FTPCommands = []string{"RETR", "STOR"}
		}
	}

	if c.Fingerprint != nil {
		if c.Fingerprint.Prefix == "" {
			c.Fingerprint.Prefix = "meer"
		}
		if c.Fingerprint.IPTTL == 0 {
			c.Fingerprint.IPTTL = 86400
		}
		if c.Fingerprint.DHCPTTL == 0 {
			c.Fingerprint.DHCPTTL = 432000
		}
	}

	if c.DNS != nil {
		// Server stays empty so the resolver can fall back to
		// /etc/resolv.conf.
		if c.DNS.CacheTTL == 0 {
			c.DNS.CacheTTL = 300
		}
	}

	if c.GeoIP != nil && c.GeoIP.Database == "" {
		c.GeoIP.Database = "/usr/share/GeoIP/GeoLite2-City.mmdb"
	}

	if c.API != nil {
		if c.API.Listen == "" {
			c.API.Listen = "127.0.0.1:8953"
		}
		c.API.Tap = defaultTrue(c.API.Tap)
	}
}

// Validate rejects configs the daemon cannot run with. Messages name
// the offending block and attribute.
func (c *Config) Validate() error {
	if c.Core == nil || c.Core.Hostname == "" {
		return errors.New(errors.KindConfig, "core.hostname is required")
	}

	switch c.Core.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.Errorf(errors.KindConfig, "core.log_level %q is not one of debug, info, warn, error", c.Core.LogLevel)
	}

	switch c.Input.Type {
	case "file", "unix_socket":
	default:
		return errors.Errorf(errors.KindConfig, "input.type %q is not one of file, unix_socket", c.Input.Type)
	}

	if c.SQL != nil && c.SQL.Enabled && c.SQL.Driver != "sqlite" {
		return errors.Errorf(errors.KindConfig, "sql.driver %q is not supported, only sqlite", c.SQL.Driver)
	}

	if c.Redis != nil && c.Redis.Enabled {
		switch c.Redis.Mode {
		case "lpush", "rpush", "publish", "set":
		default:
			return errors.Errorf(errors.KindConfig, "redis.mode %q is not one of lpush, rpush, publish, set", c.Redis.Mode)
		}
	}

	if c.External != nil && c.External.Enabled && c.External.Program == "" {
		return errors.New(errors.KindConfig, "external.program is required when the external sink is enabled")
	}

	if c.Fingerprint != nil && c.Fingerprint.Enabled {
		if c.Redis == nil || !c.Redis.Enabled {
			return errors.New(errors.KindConfig, "fingerprint.enabled requires an enabled redis block")
		}
		if strings.Contains(c.Fingerprint.Prefix, "|") {
			return errors.Errorf(errors.KindConfig, "fingerprint.prefix %q must not contain the key separator", c.Fingerprint.Prefix)
		}
	}

	if c.NDP != nil && c.NDP.Enabled {
		if c.Elasticsearch == nil || !c.Elasticsearch.Enabled {
			return errors.New(errors.KindConfig, "ndp.enabled requires an enabled elasticsearch block")
		}
	}

	if c.Health != nil && c.Health.Enabled && len(c.Health.Signatures) == 0 {
		return errors.New(errors.KindConfig, "health.enabled requires at least one signature id")
	}

	return nil
}

// SinkAlerts reports whether the named per-sink alert toggle is on.
// Unconfigured blocks are disabled sinks.
func (c *Config) SinkAlerts(name string) bool {
	switch name {
	case "sql":
		return c.SQL != nil && c.SQL.Enabled && boolVal(c.SQL.Alerts)
	case "redis":
		return c.Redis != nil && c.Redis.Enabled && boolVal(c.Redis.Alerts)
	case "elasticsearch":
		return c.Elasticsearch != nil && c.Elasticsearch.Enabled && boolVal(c.Elasticsearch.Alerts)
	case "pipe":
		return c.Pipe != nil && c.Pipe.Enabled && boolVal(c.Pipe.Alerts)
	case "file":
		return c.File != nil && c.File.Enabled && boolVal(c.File.Alerts)
	case "external":
		return c.External != nil && c.External.Enabled
	default:
		return false
	}
}

// defaultTrue fills an omitted bool attribute whose default is true.
func defaultTrue(v *bool) *bool {
	if v != nil {
		return v
	}
	t := true
	return &t
}

func boolVal(v *bool) bool {
	return v != nil && *v
}
