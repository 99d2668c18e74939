// Invigil - Contest Proctoring and Plagiarism Detection Engine
// Copyright 2026 The Invigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/invigil/invigil

// Package websocket is the live-push fabric: a room-aware hub fanning out
// participant updates, alerts and source-analysis updates to subscribed
// dashboard observers.
//
// Delivery is best-effort unicast-to-room: no buffering, no replay. A slow
// observer is dropped rather than ever back-pressuring the ingest path.
package websocket

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/invigil/invigil/internal/logging"
	"github.com/invigil/invigil/internal/metrics"
	"github.com/invigil/invigil/internal/models"
)

// Outbound frame types.
const (
	FrameParticipantUpdated    = "participant:updated"
	FrameAlert                 = "alert"
	FrameSourceAnalysisUpdated = "sourceAnalysis:updated"
	FramePing                  = "ping"
	FramePong                  = "pong"
)

// Inbound intent prefixes.
const (
	IntentJoinDashboard    = "join:dashboard"
	IntentWatchParticipant = "watch:participant:"
)

// RoomDashboard receives every participant update, alert and
// source-analysis update.
const RoomDashboard = "dashboard"

// ParticipantRoom names the room carrying one participant's updates.
func ParticipantRoom(machineID string) string {
	return "participant:" + machineID
}

// Message is one frame on the wire, in either direction.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// join is an observer's request to enter a room.
type join struct {
	client *Client
	room   string
}

// roomMessage is an outbound frame targeted at one room.
type roomMessage struct {
	room string
	msg  Message
}

// Hub maintains the observer subscription registry and fans frames out to
// rooms. Registration, joins and broadcasts all flow through channels into
// the single Run loop; the mutex only guards the read-side snapshots.
type Hub struct {
	clients map[*Client]bool
	rooms   map[string]map[*Client]bool

	Register   chan *Client
	Unregister chan *Client
	joins      chan join
	broadcast  chan roomMessage

	mu sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		joins:      make(chan join, 64),
		broadcast:  make(chan roomMessage, 256),
	}
}

// RunWithContext runs the hub until the context is canceled, then closes
// all observers and returns ctx.Err(). Designed for suture supervision.
//
// Priority order when multiple channels are ready: shutdown, then client
// lifecycle, then broadcasts. Lifecycle-first keeps the registry consistent
// before frames are delivered.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.addClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		case j := <-h.joins:
			h.joinRoom(j)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.addClient(client)
		case client := <-h.Unregister:
			h.removeClient(client)
		case j := <-h.joins:
			h.joinRoom(j)
		case rm := <-h.broadcast:
			h.deliver(rm)
		}
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	total := len(h.clients)
	h.mu.Unlock()
	metrics.ObserverConnections.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("observer connected")
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		for _, members := range h.rooms {
			delete(members, c)
		}
		close(c.send)
	}
	total := len(h.clients)
	h.mu.Unlock()
	metrics.ObserverConnections.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("observer disconnected")
}

func (h *Hub) joinRoom(j join) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[j.client] {
		return
	}
	members, ok := h.rooms[j.room]
	if !ok {
		members = make(map[*Client]bool)
		h.rooms[j.room] = members
	}
	members[j.client] = true
	logging.Debug().Str("room", j.room).Uint64("client", j.client.id).Msg("observer joined room")
}

// deliver sends a frame to every member of a room in deterministic (client
// id) order. A member with a full buffer is dropped from the hub entirely;
// observers reconnect and re-subscribe.
func (h *Hub) deliver(rm roomMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members := h.rooms[rm.room]
	if len(members) == 0 {
		return
	}

	ordered := make([]*Client, 0, len(members))
	for c := range members {
		ordered = append(ordered, c)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].id < ordered[j].id })

	for _, c := range ordered {
		select {
		case c.send <- rm.msg:
		default:
			delete(h.clients, c)
			for _, roomMembers := range h.rooms {
				delete(roomMembers, c)
			}
			close(c.send)
			logging.Debug().Uint64("client", c.id).Msg("dropped slow observer")
		}
	}
}

// shutdown closes every observer in id order.
func (h *Hub) shutdown(ctx context.Context) {
	h.mu.Lock()
	ordered := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		ordered = append(ordered, c)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].id < ordered[j].id })
	for _, c := range ordered {
		delete(h.clients, c)
		close(c.send)
	}
	h.rooms = make(map[string]map[*Client]bool)
	h.mu.Unlock()
	metrics.ObserverConnections.Set(0)

	logging.Info().
		Str("component", "websocket-hub").
		Int("clients_closed", len(ordered)).
		Err(ctx.Err()).
		Msg("websocket hub stopped")
}

// handleIntent processes an inbound observer message.
func (h *Hub) handleIntent(c *Client, msg Message) {
	switch {
	case msg.Type == FramePing:
		select {
		case c.send <- Message{Type: FramePong}:
		default:
		}
	case msg.Type == IntentJoinDashboard:
		h.enqueueJoin(c, RoomDashboard)
	case strings.HasPrefix(msg.Type, IntentWatchParticipant):
		id := strings.TrimPrefix(msg.Type, IntentWatchParticipant)
		if id != "" {
			h.enqueueJoin(c, ParticipantRoom(id))
		}
	default:
		logging.Debug().Str("type", msg.Type).Msg("ignoring unknown observer intent")
	}
}

func (h *Hub) enqueueJoin(c *Client, room string) {
	select {
	case h.joins <- join{client: c, room: room}:
	default:
		logging.Warn().Str("room", room).Msg("join queue full, dropping join intent")
	}
}

// broadcastToRoom enqueues a frame for a room without ever blocking the
// caller. A full hub queue drops the frame.
func (h *Hub) broadcastToRoom(room, frameType string, data interface{}) {
	select {
	case h.broadcast <- roomMessage{room: room, msg: Message{Type: frameType, Data: data}}:
	default:
		logging.Warn().Str("frame", frameType).Msg("broadcast channel full, dropping frame")
	}
}

// BroadcastParticipantUpdated pushes a participant summary to the dashboard
// room and the participant's own room.
func (h *Hub) BroadcastParticipantUpdated(summary models.ParticipantSummary) {
	h.broadcastToRoom(RoomDashboard, FrameParticipantUpdated, summary)
	h.broadcastToRoom(ParticipantRoom(summary.MachineID), FrameParticipantUpdated, summary)
}

// BroadcastAlert pushes an alert to the dashboard room.
func (h *Hub) BroadcastAlert(alert *models.Alert) {
	h.broadcastToRoom(RoomDashboard, FrameAlert, alert)
}

// BroadcastSourceAnalysisUpdated pushes an analysis summary to the
// dashboard room and the participant's own room.
func (h *Hub) BroadcastSourceAnalysisUpdated(summary models.SourceAnalysisSummary) {
	h.broadcastToRoom(RoomDashboard, FrameSourceAnalysisUpdated, summary)
	h.broadcastToRoom(ParticipantRoom(summary.ParticipantID), FrameSourceAnalysisUpdated, summary)
}

// ClientCount returns the number of connected observers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomCount returns the number of observers joined to a room.
func (h *Hub) RoomCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
