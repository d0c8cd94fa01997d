// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VVelox/meer/internal/errors"
)

func TestParseRejectsBadLines(t *testing.T) {
	cases := []struct {
		name string
		line string
	}{
		{"empty", ""},
		{"whitespace", "   \n"},
		{"truncated", `{"event_type":"alert"`},
		{"not json", "timestamp=now type=alert"},
		{"missing event_type", `{"timestamp":"2026-01-02T03:04:05.000000+0000"}`},
		{"empty event_type", `{"event_type":""}`},
		{"non-string event_type", `{"event_type":42}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.line))
			require.Error(t, err)
			assert.Equal(t, errors.KindParse, errors.GetKind(err))
		})
	}
}

func TestParseAndAccess(t *testing.T) {
	line := `{"event_type":"alert","timestamp":"2026-01-02T03:04:05.000000+0000",` +
		`"src_ip":"10.1.1.5","src_port":55412,"flow_id":2211676648332575,` +
		`"alert":{"signature_id":5001021,"rev":2,"signature":"TEST rule","severity":3},` +
		`"tls":{"ja3":{"hash":"abcd"}},"proxied":true}`

	ev, err := Parse([]byte(line))
	require.NoError(t, err)

	assert.Equal(t, "alert", ev.Type)
	assert.Equal(t, "10.1.1.5", ev.Str("src_ip"))
	assert.Equal(t, "TEST rule", ev.Str("alert", "signature"))
	assert.Equal(t, "abcd", ev.Str("tls", "ja3", "hash"))
	assert.Equal(t, int64(55412), ev.Int64("src_port"))
	assert.True(t, ev.Bool("proxied"))

	// Large flow ids keep full integer fidelity.
	assert.Equal(t, int64(2211676648332575), ev.Int64("flow_id"))
	assert.Equal(t, "2211676648332575", ev.Str("flow_id"))

	// Absent paths are empty, never a panic.
	assert.Equal(t, "", ev.Str("alert", "metadata", "nope"))
	assert.Equal(t, int64(0), ev.Int64("no", "such", "path"))
	assert.False(t, ev.Has("dns"))
	assert.True(t, ev.Has("alert", "severity"))
}

func TestSubOrParseAcceptsStringForm(t *testing.T) {
	line := `{"event_type":"flow","flow":"{\"state\":\"established\",\"bytes_toserver\":120}"}`
	ev, err := Parse([]byte(line))
	require.NoError(t, err)

	flow, ok := ev.SubOrParse("flow")
	require.True(t, ok)
	assert.Equal(t, "established", flow["state"])

	_, ok = ev.Sub("flow")
	assert.False(t, ok, "Sub must not parse string forms")

	// Same accessor on a native object.
	line = `{"event_type":"flow","flow":{"state":"closed"}}`
	ev, err = Parse([]byte(line))
	require.NoError(t, err)
	flow, ok = ev.SubOrParse("flow")
	require.True(t, ok)
	assert.Equal(t, "closed", flow["state"])
}

func TestRenderVerbatimUntilModified(t *testing.T) {
	line := `{"event_type":"dns","dns":{"type":"query","rrname":"example.com"}}`
	ev, err := Parse([]byte(line))
	require.NoError(t, err)

	out, err := ev.Render()
	require.NoError(t, err)
	assert.Equal(t, line, string(out))

	ev.Set("host", "sensor-1")
	out, err = ev.Render()
	require.NoError(t, err)
	assert.NotEqual(t, line, string(out))
	assert.Contains(t, string(out), `"host":"sensor-1"`)
	assert.Contains(t, string(out), `"rrname":"example.com"`)
}

func TestDeleteOnlyMarksWhenPresent(t *testing.T) {
	line := `{"event_type":"stats","stats":{"uptime":10}}`
	ev, err := Parse([]byte(line))
	require.NoError(t, err)

	ev.Delete("no_such_key")
	out, err := ev.Render()
	require.NoError(t, err)
	assert.Equal(t, line, string(out), "deleting an absent key must not re-encode")

	ev.Delete("stats")
	out, err = ev.Render()
	require.NoError(t, err)
	assert.NotContains(t, string(out), "uptime")
}

func TestDuplicateKeysLastWins(t *testing.T) {
	line := `{"event_type":"alert","event_type":"dns"}`
	ev, err := Parse([]byte(line))
	require.NoError(t, err)
	assert.Equal(t, "dns", ev.Type)
}
