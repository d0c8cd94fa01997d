// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package api

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VVelox/meer/internal/pipeline"
)

func dialTap(t *testing.T, httpURL, query string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(httpURL, "http") + "/tap" + query
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })

	// Give the handler a moment to register with the hub.
	time.Sleep(100 * time.Millisecond)
	return conn
}

func readTap(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	return string(msg)
}

func TestTapStreamsPublishedEvents(t *testing.T) {
	hub := pipeline.NewHub()
	ts := newTestServer(t, Config{Tap: true}, Sources{Hub: hub})

	conn := dialTap(t, ts.URL, "")
	hub.Publish("alert", []byte(`{"event_type":"alert"}`))

	assert.Equal(t, `{"event_type":"alert"}`, readTap(t, conn))
}

func TestTapFiltersByQueryTypes(t *testing.T) {
	hub := pipeline.NewHub()
	ts := newTestServer(t, Config{Tap: true}, Sources{Hub: hub})

	conn := dialTap(t, ts.URL, "?types=dns,tls")
	hub.Publish("alert", []byte(`{"event_type":"alert"}`))
	hub.Publish("dns", []byte(`{"event_type":"dns"}`))

	assert.Equal(t, `{"event_type":"dns"}`, readTap(t, conn), "alert is filtered out")
}

func TestTapUnavailableWithoutHub(t *testing.T) {
	ts := newTestServer(t, Config{Tap: true}, Sources{})

	resp, err := http.Get(ts.URL + "/tap")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestTapDisabledIsNotRouted(t *testing.T) {
	hub := pipeline.NewHub()
	ts := newTestServer(t, Config{Tap: false}, Sources{Hub: hub})

	resp, err := http.Get(ts.URL + "/tap")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
