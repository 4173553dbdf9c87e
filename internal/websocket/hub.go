// Waypost - Multi-Source Location Ingestion and Live Broadcast Relay
// Copyright 2026 M. Krein (mkrein)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mkrein/waypost

// Package websocket implements the live broadcast hub. Each connected
// subscriber is bound to a user identity after token authentication and
// joined to one room per device it may observe; position updates are
// delivered only to subscribers in the event's room.
package websocket

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/mkrein/waypost/internal/auth"
	"github.com/mkrein/waypost/internal/cache"
	"github.com/mkrein/waypost/internal/logging"
	"github.com/mkrein/waypost/internal/metrics"
	"github.com/mkrein/waypost/internal/models"
)

// Message types of the subscriber wire protocol.
const (
	MessageTypeRequestAuth    = "request-authentication"
	MessageTypeAuthorized     = "authorized"
	MessageTypeUnauthorized   = "unauthorized"
	MessageTypePositionUpdate = "position-update"
	MessageTypeAuthenticate   = "authenticate-with-token"
	MessageTypePing           = "ping"
	MessageTypePong           = "pong"
)

// Message is one frame of the subscriber wire protocol.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// DirectoryStore answers the two questions the hub asks of storage:
// which devices a user may observe, and who owns an API key.
type DirectoryStore interface {
	VisibleDevices(ctx context.Context, userID int64) ([]models.Device, error)
	OwnerOfAPIKey(ctx context.Context, apiKey string) (*models.User, error)
}

// ErrBroadcastFull is returned by Publish when the hub's intake queue
// is saturated.
var ErrBroadcastFull = errors.New("broadcast queue full")

const storeQueryTimeout = 5 * time.Second

// Hub maintains the set of live subscribers and their room memberships.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan *models.LocationEvent
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex

	store DirectoryStore
	codec *auth.TokenCodec

	// bootstrapped tracks rooms whose ownership derivation already ran,
	// so a publish for an already-known device skips the lookup.
	bootstrapped *cache.LRUSet
}

// NewHub creates a hub over the given storage and token codec. The
// bootstrapped-room set is bounded; size it proportionally to the
// expected device population.
func NewHub(store DirectoryStore, codec *auth.TokenCodec, bootstrapped *cache.LRUSet) *Hub {
	if bootstrapped == nil {
		bootstrapped = cache.NewLRUSet(10000, time.Hour)
	}
	return &Hub{
		clients:      make(map[*Client]bool),
		broadcast:    make(chan *models.LocationEvent, 256),
		Register:     make(chan *Client),
		Unregister:   make(chan *Client),
		store:        store,
		codec:        codec,
		bootstrapped: bootstrapped,
	}
}

// RunWithContext runs the hub loop until ctx is canceled. Selection is
// priority based: shutdown first, then client lifecycle, then events,
// so client state is consistent before any delivery.
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
			h.handleRegister(client)
			continue
		case client := <-h.Unregister:
			h.handleUnregister(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.handleRegister(client)
		case client := <-h.Unregister:
			h.handleUnregister(client)
		case event := <-h.broadcast:
			h.deliver(event)
		}
	}
}

func (h *Hub) handleRegister(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnectedClients.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("websocket client connected")

	// Greet the new connection with the authentication prompt.
	select {
	case client.send <- Message{Type: MessageTypeRequestAuth}:
	default:
	}
}

func (h *Hub) handleUnregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		if client.authenticated {
			metrics.WSAuthorizedClients.Dec()
		}
	}
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnectedClients.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("websocket client disconnected")
}

// Authenticate binds a connection to the token's user and joins it to
// every room the user may observe, atomically: on any failure the
// connection stays unauthenticated with no rooms joined. It never
// panics and never partially applies.
func (h *Hub) Authenticate(ctx context.Context, client *Client, token string) {
	claims, err := h.codec.Decode(token)
	if err != nil {
		logging.Debug().Err(err).Msg("websocket authentication rejected")
		h.sendTo(client, Message{Type: MessageTypeUnauthorized})
		return
	}

	devices, err := h.store.VisibleDevices(ctx, claims.UserID)
	if err != nil {
		logging.Warn().Err(err).Int64("user_id", claims.UserID).Msg("visible-device lookup failed during authentication")
		h.sendTo(client, Message{Type: MessageTypeUnauthorized})
		return
	}

	rooms := make(map[int64]struct{}, len(devices))
	for i := range devices {
		rooms[devices[i].DeviceID] = struct{}{}
	}

	h.mu.Lock()
	wasAuthenticated := client.authenticated
	client.userID = claims.UserID
	client.authenticated = true
	client.rooms = rooms
	h.mu.Unlock()

	if !wasAuthenticated {
		metrics.WSAuthorizedClients.Inc()
	}
	logging.Info().Int64("user_id", claims.UserID).Int("rooms", len(rooms)).Msg("websocket client authorized")
	h.sendTo(client, Message{Type: MessageTypeAuthorized})
}

// Publish enqueues an event for room-scoped delivery. It returns
// ErrBroadcastFull instead of blocking when the intake queue is
// saturated.
func (h *Hub) Publish(event *models.LocationEvent) error {
	select {
	case h.broadcast <- event:
		return nil
	default:
		return ErrBroadcastFull
	}
}

// deliver performs the room bootstrap if this room is unseen, then
// emits the event to the room's subscribers in client-id order.
func (h *Hub) deliver(event *models.LocationEvent) {
	room := event.DeviceID

	if !h.bootstrapped.Observe(room) {
		h.bootstrapRoom(room, event.APIKey)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	members := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		if !client.authenticated {
			continue
		}
		if _, joined := client.rooms[room]; joined {
			members = append(members, client)
		}
	}
	sort.Slice(members, func(i, j int) bool {
		return members[i].id < members[j].id
	})

	msg := Message{Type: MessageTypePositionUpdate, Data: event}

	var toRemove []*Client
	for _, client := range members {
		select {
		case client.send <- msg:
			metrics.WSEventsDelivered.Inc()
		default:
			metrics.WSEventsDropped.Inc()
			toRemove = append(toRemove, client)
		}
	}

	// A saturated send buffer means the subscriber stopped draining.
	for _, client := range toRemove {
		close(client.send)
		delete(h.clients, client)
	}
}

// bootstrapRoom derives the room's owning user by API key and joins the
// owner's currently-connected subscribers. Runs once per room within
// the bootstrapped set's bounds; the device may have been auto-created
// after its owner already connected.
func (h *Hub) bootstrapRoom(room int64, apiKey string) {
	metrics.WSRoomBootstraps.Inc()

	ctx, cancel := context.WithTimeout(context.Background(), storeQueryTimeout)
	defer cancel()

	owner, err := h.store.OwnerOfAPIKey(ctx, apiKey)
	if err != nil {
		logging.Warn().Err(err).Int64("room", room).Msg("room ownership derivation failed")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	joined := 0
	for client := range h.clients {
		if client.authenticated && client.userID == owner.UserID {
			client.rooms[room] = struct{}{}
			joined++
		}
	}
	if joined > 0 {
		logging.Debug().Int64("room", room).Int("subscribers", joined).Msg("room bootstrapped onto connected subscribers")
	}
}

// sendTo delivers a protocol message to one client without blocking the
// caller. The read lock is held across the send: channel close only
// happens under the write lock, so a connected client's channel cannot
// close mid-send.
func (h *Hub) sendTo(client *Client, msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, connected := h.clients[client]; !connected {
		return
	}

	select {
	case client.send <- msg:
	default:
	}
}

func (h *Hub) shutdown(ctx context.Context) {
	h.mu.Lock()
	count := len(h.clients)
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.mu.Unlock()

	metrics.WSConnectedClients.Set(0)
	logging.Info().
		Str("component", "websocket-hub").
		AnErr("reason", ctx.Err()).
		Int("clients_closed", count).
		Msg("websocket hub stopped")
}

// GetClientCount returns the number of connected clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
