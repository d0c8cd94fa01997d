// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
)

// DefaultConfigHCL renders a starter meer.hcl with every block present
// and sinks disabled, so an operator only has to flip switches.
func DefaultConfigHCL(hostname string) []byte {
	f := hclwrite.NewEmptyFile()
	body := f.Body()

	body.AppendUnstructuredTokens(commentTokens(
		"Meer bridge configuration.",
		"Enable the sinks you need and restart, or run 'meer config check'.",
	))
	body.SetAttributeValue("schema_version", cty.StringVal("1.0"))
	body.AppendNewline()

	core := body.AppendNewBlock("core", nil).Body()
	core.SetAttributeValue("hostname", cty.StringVal(hostname))
	core.SetAttributeValue("interface", cty.StringVal("eth0"))
	core.SetAttributeValue("classifications", cty.StringVal("/etc/suricata/classification.config"))
	core.SetAttributeValue("payload_buffer_size", cty.NumberIntVal(1<<20))
	core.SetAttributeValue("stats_interval", cty.NumberIntVal(60))
	core.SetAttributeValue("log_level", cty.StringVal("info"))
	body.AppendNewline()

	input := body.AppendNewBlock("input", nil).Body()
	input.SetAttributeValue("type", cty.StringVal("file"))
	input.SetAttributeValue("spool_file", cty.StringVal("/var/log/suricata/alert.json"))
	input.SetAttributeValue("waldo_file", cty.StringVal("/var/lib/meer/meer.waldo"))
	body.AppendNewline()

	sqlB := body.AppendNewBlock("sql", nil).Body()
	sqlB.SetAttributeValue("enabled", cty.BoolVal(false))
	sqlB.SetAttributeValue("driver", cty.StringVal("sqlite"))
	sqlB.SetAttributeValue("path", cty.StringVal("/var/lib/meer/meer.db"))
	body.AppendNewline()

	redis := body.AppendNewBlock("redis", nil).Body()
	redis.SetAttributeValue("enabled", cty.BoolVal(false))
	redis.SetAttributeValue("server", cty.StringVal("127.0.0.1"))
	redis.SetAttributeValue("port", cty.NumberIntVal(6379))
	redis.SetAttributeValue("mode", cty.StringVal("lpush"))
	redis.SetAttributeValue("key", cty.StringVal("suricata"))
	body.AppendNewline()

	es := body.AppendNewBlock("elasticsearch", nil).Body()
	es.SetAttributeValue("enabled", cty.BoolVal(false))
	es.SetAttributeValue("url", cty.StringVal("http://127.0.0.1:9200"))
	es.SetAttributeValue("index", cty.StringVal("suricata"))
	es.SetAttributeValue("ndp_index", cty.StringVal("ndp"))
	body.AppendNewline()

	pipe := body.AppendNewBlock("pipe", nil).Body()
	pipe.SetAttributeValue("enabled", cty.BoolVal(false))
	pipe.SetAttributeValue("path", cty.StringVal("/var/run/meer/meer.pipe"))
	body.AppendNewline()

	file := body.AppendNewBlock("file", nil).Body()
	file.SetAttributeValue("enabled", cty.BoolVal(false))
	file.SetAttributeValue("path", cty.StringVal("/var/log/meer/meer.json"))
	body.AppendNewline()

	external := body.AppendNewBlock("external", nil).Body()
	external.SetAttributeValue("enabled", cty.BoolVal(false))
	external.SetAttributeValue("program", cty.StringVal("/usr/local/bin/meer-notify"))
	body.AppendNewline()

	ndp := body.AppendNewBlock("ndp", nil).Body()
	ndp.SetAttributeValue("enabled", cty.BoolVal(false))
	ndp.SetAttributeValue("ignore_networks", cty.ListVal([]cty.Value{
		cty.StringVal("10.0.0.0/8"),
		cty.StringVal("172.16.0.0/12"),
		cty.StringVal("192.168.0.0/16"),
	}))
	body.AppendNewline()

	fp := body.AppendNewBlock("fingerprint", nil).Body()
	fp.SetAttributeValue("enabled", cty.BoolVal(false))
	fp.SetAttributeValue("prefix", cty.StringVal("meer"))
	fp.SetAttributeValue("networks", cty.ListVal([]cty.Value{
		cty.StringVal("10.0.0.0/8"),
	}))
	body.AppendNewline()

	dns := body.AppendNewBlock("dns", nil).Body()
	dns.SetAttributeValue("enabled", cty.BoolVal(false))
	dns.SetAttributeValue("cache_ttl", cty.NumberIntVal(300))
	body.AppendNewline()

	geo := body.AppendNewBlock("geoip", nil).Body()
	geo.SetAttributeValue("enabled", cty.BoolVal(false))
	geo.SetAttributeValue("database", cty.StringVal("/usr/share/GeoIP/GeoLite2-City.mmdb"))
	body.AppendNewline()

	api := body.AppendNewBlock("api", nil).Body()
	api.SetAttributeValue("enabled", cty.BoolVal(false))
	api.SetAttributeValue("listen", cty.StringVal("127.0.0.1:8953"))

	return f.Bytes()
}

func commentTokens(lines ...string) hclwrite.Tokens {
	var toks hclwrite.Tokens
	for _, l := range lines {
		toks = append(toks, &hclwrite.Token{
			Type:  hclsyntax.TokenComment,
			Bytes: []byte("# " + l + "\n"),
		})
	}
	return toks
}
