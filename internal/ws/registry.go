// Package ws implements the process-local registry of live streaming
// connections and the event fan-out to them. Delivery is best-effort and
// fire-and-forget: nothing is persisted or retried, and a subscriber that is
// offline simply misses events generated while it was away.
package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/seantiz/argus/internal/model"
)

// conn is one live streaming connection. Owned exclusively by the Registry.
type conn struct {
	id        string
	projectID string
	channels  map[string]bool
	createdAt time.Time
	transport Transport
}

// BroadcastOpts filters the target set of a broadcast. Zero-valued fields
// match everything.
type BroadcastOpts struct {
	// ProjectID limits delivery to connections scoped to this project.
	ProjectID string
	// Channel limits delivery to connections subscribed to this channel.
	Channel string
	// Exclude skips the connection with this ID (typically the originator).
	Exclude string
}

// Registry tracks live connections, their project scope, and their channel
// subscriptions, and routes events to them. It is the sole owner of both the
// connection map and the rate-limit windows; all mutation goes through it.
type Registry struct {
	mu      sync.Mutex
	conns   map[string]*conn
	limiter *limiter
	logger  *slog.Logger
}

// NewRegistry creates an empty connection registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		conns:   make(map[string]*conn),
		limiter: newLimiter(rateLimitCap, rateLimitWindow),
		logger:  logger,
	}
}

// Admit registers a connection under the given project scope, subscribes it
// to the default channel, sends it a connected acknowledgement, and returns
// its assigned ID.
func (r *Registry) Admit(t Transport, projectID string) string {
	c := &conn{
		id:        model.NewID(),
		projectID: projectID,
		channels:  map[string]bool{DefaultChannel: true},
		createdAt: time.Now().UTC(),
		transport: t,
	}

	r.mu.Lock()
	r.conns[c.id] = c
	n := len(r.conns)
	r.mu.Unlock()

	wsConnectionsActive.Set(float64(n))
	r.send(c, connectedEvent(c.id))
	r.logger.Debug("connection admitted", "conn_id", c.id, "project_id", projectID)
	return c.id
}

// Remove deregisters a connection and clears its rate-limit window. Safe to
// call multiple times; removing an unknown connection is a no-op. The
// transport itself is not closed here: the read loop owns its lifecycle.
func (r *Registry) Remove(connID string) {
	r.mu.Lock()
	_, ok := r.conns[connID]
	if ok {
		delete(r.conns, connID)
	}
	n := len(r.conns)
	r.mu.Unlock()

	if !ok {
		return
	}
	r.limiter.drop(connID)
	wsConnectionsActive.Set(float64(n))
	r.logger.Debug("connection removed", "conn_id", connID)
}

// Subscribe adds channels to a connection's subscription set. Unknown
// connections are a no-op.
func (r *Registry) Subscribe(connID string, channels []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[connID]
	if !ok {
		return
	}
	for _, ch := range channels {
		c.channels[ch] = true
	}
}

// Unsubscribe removes channels from a connection's subscription set. Unknown
// connections are a no-op.
func (r *Registry) Unsubscribe(connID string, channels []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[connID]
	if !ok {
		return
	}
	for _, ch := range channels {
		delete(c.channels, ch)
	}
}

// Broadcast delivers an event to every live connection matching opts. Sends
// are best-effort: a closed transport is skipped, and a failed send removes
// that one connection without affecting the rest or the caller.
func (r *Registry) Broadcast(evt Event, opts BroadcastOpts) {
	data, err := evt.encode()
	if err != nil {
		r.logger.Error("encode broadcast event", "type", evt.Type, "error", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var dead []string
	for id, c := range r.conns {
		if id == opts.Exclude {
			continue
		}
		if opts.ProjectID != "" && c.projectID != opts.ProjectID {
			continue
		}
		if opts.Channel != "" && !c.channels[opts.Channel] {
			continue
		}
		if !c.transport.Open() {
			continue
		}
		if err := c.transport.Send(data); err != nil {
			dead = append(dead, id)
			continue
		}
		wsBroadcastsTotal.Inc()
	}

	for _, id := range dead {
		c := r.conns[id]
		delete(r.conns, id)
		_ = c.transport.Close(websocket.CloseNormalClosure)
		r.logger.Debug("removed dead connection during broadcast", "conn_id", id)
	}
	if len(dead) > 0 {
		wsConnectionsActive.Set(float64(len(r.conns)))
		// Windows for the removed connections are reclaimed by the next sweep.
	}
}

// Dispatch parses an inbound message from a connection and routes it. It
// never fails the caller: malformed or unknown messages, and rate-limit
// rejections, are reported back to the originating connection as error
// events, and the connection stays open.
func (r *Registry) Dispatch(connID string, raw []byte) {
	r.mu.Lock()
	c, ok := r.conns[connID]
	r.mu.Unlock()
	if !ok {
		return
	}

	if !r.limiter.allow(connID) {
		wsRateLimitedTotal.Inc()
		r.send(c, errorEvent("rate limit exceeded"))
		return
	}

	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		r.send(c, errorEvent("malformed message"))
		return
	}

	switch msg.Type {
	case msgSubscribe:
		r.Subscribe(connID, msg.Channels)
	case msgUnsubscribe:
		r.Unsubscribe(connID, msg.Channels)
	case msgPing:
		if err := c.transport.SendText(pongReply); err != nil {
			r.Remove(connID)
		}
	default:
		r.send(c, errorEvent("unknown message type: "+msg.Type))
	}
}

// SweepRateLimits reclaims rate-limit windows for connections that are gone
// and trims stale activity from the rest. Run periodically by the scheduler.
func (r *Registry) SweepRateLimits() {
	r.mu.Lock()
	live := make(map[string]bool, len(r.conns))
	for id := range r.conns {
		live[id] = true
	}
	r.mu.Unlock()

	r.limiter.sweep(SweepInterval, live)
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// CloseAll deregisters every connection and closes each transport with a
// normal-closure code. Called at shutdown, after the periodic timers have
// stopped.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := make([]*conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.conns = make(map[string]*conn)
	r.mu.Unlock()

	for _, c := range conns {
		_ = c.transport.Close(websocket.CloseNormalClosure)
		r.limiter.drop(c.id)
	}
	wsConnectionsActive.Set(0)
	if len(conns) > 0 {
		r.logger.Info("closed all connections", "count", len(conns))
	}
}

// send delivers a single event to one connection, removing it on failure.
func (r *Registry) send(c *conn, evt Event) {
	if !c.transport.Open() {
		return
	}
	data, err := evt.encode()
	if err != nil {
		r.logger.Error("encode event", "type", evt.Type, "error", err)
		return
	}
	if err := c.transport.Send(data); err != nil {
		r.Remove(c.id)
		_ = c.transport.Close(websocket.CloseNormalClosure)
	}
}
