// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package config loads and validates the bridge's HCL configuration.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config is the root of meer.hcl.
type Config struct {
	// Schema version for backward compatibility.
	// @enum: 1.0
	// @default: "1.0"
	SchemaVersion string `hcl:"schema_version,optional" json:"schema_version,omitempty"`

	Core          *Core          `hcl:"core,block" json:"core,omitempty"`
	Input         *Input         `hcl:"input,block" json:"input,omitempty"`
	SQL           *SQL           `hcl:"sql,block" json:"sql,omitempty"`
	Redis         *Redis         `hcl:"redis,block" json:"redis,omitempty"`
	Elasticsearch *Elasticsearch `hcl:"elasticsearch,block" json:"elasticsearch,omitempty"`
	Pipe          *Pipe          `hcl:"pipe,block" json:"pipe,omitempty"`
	File          *File          `hcl:"file,block" json:"file,omitempty"`
	External      *External      `hcl:"external,block" json:"external,omitempty"`
	NDP           *NDP           `hcl:"ndp,block" json:"ndp,omitempty"`
	Fingerprint   *Fingerprint   `hcl:"fingerprint,block" json:"fingerprint,omitempty"`
	DNS           *DNS           `hcl:"dns,block" json:"dns,omitempty"`
	GeoIP         *GeoIP         `hcl:"geoip,block" json:"geoip,omitempty"`
	Health        *Health        `hcl:"health,block" json:"health,omitempty"`
	API           *API           `hcl:"api,block" json:"api,omitempty"`
}

// Core holds sensor identity and engine-wide settings.
type Core struct {
	// Hostname reported in enriched events. Required.
	// @example: "sensor-01.example.com"
	Hostname string `hcl:"hostname" json:"hostname"`

	// Monitored interface name recorded in fingerprint events.
	// @example: "eth0"
	Interface string `hcl:"interface,optional" json:"interface,omitempty"`

	// Free-form sensor description.
	Description string `hcl:"description,optional" json:"description,omitempty"`

	// Unprivileged user to run as after opening privileged resources.
	// @default: ""
	RunAs string `hcl:"runas,optional" json:"runas,omitempty"`

	// Path to a Snort-style classification.config used to repair
	// alerts that carry no category.
	Classifications string `hcl:"classifications,optional" json:"classifications,omitempty"`

	// Upper bound in bytes for an enriched event. Enrichment stops
	// before the rendered event would exceed this.
	// @default: 1048576
	PayloadBufferSize int `hcl:"payload_buffer_size,optional" json:"payload_buffer_size,omitempty"`

	// Process Sagan client_stats events instead of dropping them.
	// @default: false
	ClientStats bool `hcl:"client_stats,optional" json:"client_stats,omitempty"`

	// Seconds between counter summary log lines. 0 disables.
	// @default: 60
	StatsInterval int `hcl:"stats_interval,optional" json:"stats_interval,omitempty"`

	// Log file path. Empty logs to console only.
	LogFile string `hcl:"log_file,optional" json:"log_file,omitempty"`

	// Log level: debug, info, warn, error.
	// @default: "info"
	LogLevel string `hcl:"log_level,optional" json:"log_level,omitempty"`

	// Emit logs as JSON instead of console lines.
	// @default: false
	LogJSON bool `hcl:"log_json,optional" json:"log_json,omitempty"`
}

// Input selects where EVE lines come from.
type Input struct {
	// @enum: file, unix_socket
	// @default: "file"
	Type string `hcl:"type,optional" json:"type,omitempty"`

	// Spool file followed when type is "file".
	// @default: "/var/log/suricata/alert.json"
	SpoolFile string `hcl:"spool_file,optional" json:"spool_file,omitempty"`

	// Offset bookmark persisted across restarts.
	// @default: "/var/lib/meer/meer.waldo"
	WaldoFile string `hcl:"waldo_file,optional" json:"waldo_file,omitempty"`

	// Datagram socket path when type is "unix_socket".
	// @default: "/var/run/meer/meer.socket"
	SocketPath string `hcl:"socket_path,optional" json:"socket_path,omitempty"`
}

// SQL configures the alert database sink.
type SQL struct {
	// @default: false
	Enabled bool `hcl:"enabled,optional" json:"enabled,omitempty"`

	// @enum: sqlite
	// @default: "sqlite"
	Driver string `hcl:"driver,optional" json:"driver,omitempty"`

	// Database path.
	// @default: "/var/lib/meer/meer.db"
	Path string `hcl:"path,optional" json:"path,omitempty"`

	// Sensor name registered in the sensor table. Defaults to
	// core.hostname plus the interface.
	SensorName string `hcl:"sensor_name,optional" json:"sensor_name,omitempty"`

	// Store alerts. The SQL sink receives nothing else.
	// @default: true
	Alerts *bool `hcl:"alerts,optional" json:"alerts,omitempty"`
}

// Redis configures both the correlation store and the KV sink.
type Redis struct {
	// @default: false
	Enabled bool `hcl:"enabled,optional" json:"enabled,omitempty"`

	// @default: "127.0.0.1"
	Server string `hcl:"server,optional" json:"server,omitempty"`

	// @default: 6379
	Port int `hcl:"port,optional" json:"port,omitempty"`

	Password string `hcl:"password,optional" json:"password,omitempty"`

	// @default: 0
	Database int `hcl:"database,optional" json:"database,omitempty"`

	// Delivery mode for generic events.
	// @enum: lpush, rpush, publish, set
	// @default: "lpush"
	Mode string `hcl:"mode,optional" json:"mode,omitempty"`

	// Key or channel generic events are delivered to.
	// @default: "suricata"
	Key string `hcl:"key,optional" json:"key,omitempty"`

	// Deliver alerts to the "alert" key.
	// @default: true
	Alerts *bool `hcl:"alerts,optional" json:"alerts,omitempty"`

	// Event types delivered generically.
	// @default: ["flow", "dns", "http", "tls", "ssh", "smb", "fileinfo"]
	Routing []string `hcl:"routing,optional" json:"routing,omitempty"`
}

// Elasticsearch configures the search cluster sink.
type Elasticsearch struct {
	// @default: false
	Enabled bool `hcl:"enabled,optional" json:"enabled,omitempty"`

	// @default: "http://127.0.0.1:9200"
	URL string `hcl:"url,optional" json:"url,omitempty"`

	// Index pattern for generic events. A date suffix is appended.
	// @default: "suricata"
	Index string `hcl:"index,optional" json:"index,omitempty"`

	// Index holding NDP observations, addressed by document id.
	// @default: "ndp"
	NDPIndex string `hcl:"ndp_index,optional" json:"ndp_index,omitempty"`

	Username string `hcl:"username,optional" json:"username,omitempty"`
	Password string `hcl:"password,optional" json:"password,omitempty"`

	// Skip TLS certificate verification.
	// @default: false
	Insecure bool `hcl:"insecure,optional" json:"insecure,omitempty"`

	// Documents buffered before a bulk flush.
	// @default: 100
	Batch int `hcl:"batch,optional" json:"batch,omitempty"`

	// Seconds between forced flushes of a partial batch.
	// @default: 5
	FlushInterval int `hcl:"flush_interval,optional" json:"flush_interval,omitempty"`

	// Deliver alerts.
	// @default: true
	Alerts *bool `hcl:"alerts,optional" json:"alerts,omitempty"`

	// Event types delivered generically.
	// @default: ["flow", "dns", "http", "tls", "ssh", "smb", "fileinfo", "stats"]
	Routing []string `hcl:"routing,optional" json:"routing,omitempty"`
}

// Pipe configures the named pipe sink.
type Pipe struct {
	// @default: false
	Enabled bool `hcl:"enabled,optional" json:"enabled,omitempty"`

	// @default: "/var/run/meer/meer.pipe"
	Path string `hcl:"path,optional" json:"path,omitempty"`

	// Kernel pipe buffer size requested with F_SETPIPE_SZ.
	// @default: 1048576
	Size int `hcl:"size,optional" json:"size,omitempty"`

	// Deliver alerts.
	// @default: true
	Alerts *bool `hcl:"alerts,optional" json:"alerts,omitempty"`

	// Event types delivered generically.
	// @default: ["alert", "flow", "dns", "http", "tls"]
	Routing []string `hcl:"routing,optional" json:"routing,omitempty"`
}

// File configures the flat file sink.
type File struct {
	// @default: false
	Enabled bool `hcl:"enabled,optional" json:"enabled,omitempty"`

	// @default: "/var/log/meer/meer.json"
	Path string `hcl:"path,optional" json:"path,omitempty"`

	// Seconds between buffer flushes.
	// @default: 1
	FlushInterval int `hcl:"flush_interval,optional" json:"flush_interval,omitempty"`

	// Deliver alerts.
	// @default: true
	Alerts *bool `hcl:"alerts,optional" json:"alerts,omitempty"`

	// Event types delivered generically.
	// @default: ["alert"]
	Routing []string `hcl:"routing,optional" json:"routing,omitempty"`
}

// External configures the per-alert subprocess sink.
type External struct {
	// @default: false
	Enabled bool `hcl:"enabled,optional" json:"enabled,omitempty"`

	// Program executed once per alert with the event on stdin.
	Program string `hcl:"program,optional" json:"program,omitempty"`

	// Only spawn for alerts whose priority is at most this value.
	// 0 spawns for every alert.
	// @default: 0
	MaxPriority int `hcl:"max_priority,optional" json:"max_priority,omitempty"`
}

// NDP configures the network discovery collector.
type NDP struct {
	// @default: false
	Enabled bool `hcl:"enabled,optional" json:"enabled,omitempty"`

	// Traffic wholly inside these networks is not collected.
	IgnoreNetworks []string `hcl:"ignore_networks,optional" json:"ignore_networks,omitempty"`

	// Observation types collected.
	// @default: ["flow", "fileinfo", "tls", "dns", "ssh", "http", "smb", "ftp"]
	Routing []string `hcl:"routing,optional" json:"routing,omitempty"`

	// Collect SMB regardless of the ignore list.
	// @default: false
	SMBInternal bool `hcl:"smb_internal,optional" json:"smb_internal,omitempty"`

	// SMB commands worth recording.
	// @default: ["SMB2_COMMAND_CREATE", "SMB2_COMMAND_WRITE"]
	SMBCommands []string `hcl:"smb_commands,optional" json:"smb_commands,omitempty"`

	// FTP commands worth recording.
	// @default: ["RETR", "STOR"]
	FTPCommands []string `hcl:"ftp_commands,optional" json:"ftp_commands,omitempty"`

	// Free-form tag appended to every observation.
	Description string `hcl:"description,optional" json:"description,omitempty"`

	// Collect only when both endpoints are outside ignore_networks.
	// Off, one outside endpoint is enough.
	// @default: false
	RequireBothExternal bool `hcl:"require_both_external,optional" json:"require_both_external,omitempty"`

	// Restore the legacy SSH reading that took both version strings
	// from the client object.
	// @default: false
	CompatClientVersions bool `hcl:"compat_client_versions,optional" json:"compat_client_versions,omitempty"`
}

// Fingerprint configures passive fingerprint correlation.
type Fingerprint struct {
	// @default: false
	Enabled bool `hcl:"enabled,optional" json:"enabled,omitempty"`

	// Key prefix in the correlation store.
	// @default: "meer"
	Prefix string `hcl:"prefix,optional" json:"prefix,omitempty"`

	// Alerts with an endpoint inside these networks get correlation
	// lookups.
	Networks []string `hcl:"networks,optional" json:"networks,omitempty"`

	// Seconds an ip presence record lives.
	// @default: 86400
	IPTTL int `hcl:"ip_ttl,optional" json:"ip_ttl,omitempty"`

	// Seconds a dhcp record lives.
	// @default: 432000
	DHCPTTL int `hcl:"dhcp_ttl,optional" json:"dhcp_ttl,omitempty"`
}

// DNS configures reverse DNS enrichment.
type DNS struct {
	// @default: false
	Enabled bool `hcl:"enabled,optional" json:"enabled,omitempty"`

	// Resolver address as host:port. Empty uses the first
	// nameserver from /etc/resolv.conf.
	Server string `hcl:"server,optional" json:"server,omitempty"`

	// Seconds a PTR answer (or miss) stays cached.
	// @default: 300
	CacheTTL int `hcl:"cache_ttl,optional" json:"cache_ttl,omitempty"`
}

// GeoIP configures MaxMind database enrichment.
type GeoIP struct {
	// @default: false
	Enabled bool `hcl:"enabled,optional" json:"enabled,omitempty"`

	// @default: "/usr/share/GeoIP/GeoLite2-City.mmdb"
	Database string `hcl:"database,optional" json:"database,omitempty"`
}

// Health configures synthetic health alert handling.
type Health struct {
	// @default: false
	Enabled bool `hcl:"enabled,optional" json:"enabled,omitempty"`

	// Signature ids recognised as health checks.
	Signatures []int `hcl:"signatures,optional" json:"signatures,omitempty"`
}

// API configures the status HTTP server.
type API struct {
	// @default: false
	Enabled bool `hcl:"enabled,optional" json:"enabled,omitempty"`

	// @default: "127.0.0.1:8953"
	Listen string `hcl:"listen,optional" json:"listen,omitempty"`

	// Expose the live event tap websocket.
	// @default: true
	Tap *bool `hcl:"tap,optional" json:"tap,omitempty"`

	// Mount net/http/pprof under /debug/pprof.
	// @default: false
	Pprof bool `hcl:"pprof,optional" json:"pprof,omitempty"`
}

// Duration accessors so callers never re-derive units.

// StatsIntervalDuration returns the counter summary cadence.
func (c *Core) StatsIntervalDuration() time.Duration {
	return time.Duration(c.StatsInterval) * time.Second
}

// IPTTLDuration returns the ip presence TTL.
func (f *Fingerprint) IPTTLDuration() time.Duration {
	return time.Duration(f.IPTTL) * time.Second
}

// DHCPTTLDuration returns the dhcp record TTL.
func (f *Fingerprint) DHCPTTLDuration() time.Duration {
	return time.Duration(f.DHCPTTL) * time.Second
}

// CacheTTLDuration returns the PTR cache TTL.
func (d *DNS) CacheTTLDuration() time.Duration {
	return time.Duration(d.CacheTTL) * time.Second
}

// FlushIntervalDuration returns the search sink flush cadence.
func (e *Elasticsearch) FlushIntervalDuration() time.Duration {
	return time.Duration(e.FlushInterval) * time.Second
}

// FlushIntervalDuration returns the file sink flush cadence.
func (f *File) FlushIntervalDuration() time.Duration {
	return time.Duration(f.FlushInterval) * time.Second
}

// Addr returns the redis server as host:port.
func (r *Redis) Addr() string {
	return net.JoinHostPort(r.Server, strconv.Itoa(r.Port))
}

// TapEnabled reports whether the live tap endpoint is on.
func (a *API) TapEnabled() bool {
	return boolVal(a.Tap)
}
