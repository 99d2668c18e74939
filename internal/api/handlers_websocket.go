// Invigil - Contest Proctoring and Plagiarism Detection Engine
// Copyright 2026 The Invigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/invigil/invigil

package api

import (
	"net/http"

	gorilla "github.com/gorilla/websocket"

	"github.com/invigil/invigil/internal/logging"
	"github.com/invigil/invigil/internal/websocket"
)

// upgrader performs the websocket handshake. Origins are already filtered
// by the CORS middleware; the handshake itself accepts any origin so
// non-browser observers (judging tools) can connect.
var upgrader = gorilla.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleWebSocket answers GET /ws: upgrades the authenticated observer and
// hands it to the hub. The observer then sends join:dashboard or
// watch:participant:<id> intents to subscribe.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		logging.Ctx(r.Context()).Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := websocket.NewClient(s.hub, conn)
	s.hub.Register <- client
	client.Start()
}
