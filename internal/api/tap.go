// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// tapClientBuffer bounds how far one client may fall behind
	// before its events drop.
	tapClientBuffer = 256

	tapWriteTimeout = 10 * time.Second
	tapPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// CLI clients send no origin.
			return true
		}
		if strings.Contains(origin, "://localhost:") || strings.Contains(origin, "://127.0.0.1:") {
			return true
		}
		return strings.TrimPrefix(strings.TrimPrefix(origin, "http://"), "https://") == r.Host
	},
}

// handleTap streams processed event lines over a websocket. The
// optional types query parameter narrows the stream, for example
// /tap?types=alert,dns. A client that stops reading loses events
// rather than stalling the pipeline.
func (s *Server) handleTap(w http.ResponseWriter, r *http.Request) {
	if s.src.Hub == nil {
		http.Error(w, "tap not available", http.StatusServiceUnavailable)
		return
	}

	var types []string
	if raw := r.URL.Query().Get("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, t)
			}
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("tap upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch := s.src.Hub.Subscribe(tapClientBuffer, types...)
	defer s.src.Hub.Unsubscribe(ch)

	// The session id ties a connect line to its disconnect line when
	// several clients share one address.
	session := uuid.New().String()
	s.logger.Info("tap client connected", "session", session, "remote", r.RemoteAddr, "types", types)
	defer s.logger.Info("tap client disconnected", "session", session, "remote", r.RemoteAddr)

	// The read side only notices the peer going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(tapPingInterval)
	defer ping.Stop()

	for {
		select {
		case line := <-ch:
			conn.SetWriteDeadline(time.Now().Add(tapWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, line); err != nil {
				return
			}
		case <-ping.C:
			deadline := time.Now().Add(tapWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}
