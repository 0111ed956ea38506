package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fleetcore/dispatch/pkg/logger"
	"github.com/fleetcore/dispatch/pkg/uuid"
)

var ErrEmptyConn = errors.New("connection is empty")

// ConnectionHub fans a single stream of lifecycle events out to every
// connected debug observer (an operator watching /v1/ws/events). Unlike a
// 1:1 driver/rider push channel, an entry here is never addressed
// individually — Broadcast is the only write path.
type ConnectionHub struct {
	clients map[uuid.UUID]*Conn
	l       logger.Logger
	mu      sync.Mutex
	wg      sync.WaitGroup
}

func NewConnHub(l logger.Logger) *ConnectionHub {
	return &ConnectionHub{
		clients: map[uuid.UUID]*Conn{},
		l:       l,
	}
}

func (h *ConnectionHub) Add(new *Conn) error {
	if new == nil {
		return ErrEmptyConn
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if val, ok := h.clients[new.entityID]; ok {
		if err := val.Close(); err != nil {
			h.l.Warn(context.Background(), "failed to close existing conn", "entity_ID", val.entityID, "err", err.Error())
		}
	}

	h.clients[new.entityID] = new
	h.wg.Add(1)
	return nil
}

func (h *ConnectionHub) Delete(entityID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if val, ok := h.clients[entityID]; ok {
		if err := val.Close(); err != nil {
			h.l.Warn(context.Background(), "failed to close conn", "entity_ID", val.entityID, "err", err.Error())
		}
		delete(h.clients, entityID)
		h.wg.Done()
	}
}

// Broadcast sends msg to every connected observer, best-effort — a slow or
// dead observer is dropped rather than allowed to stall the others.
func (h *ConnectionHub) Broadcast(msg any) {
	h.mu.Lock()
	targets := make([]*Conn, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		if err := c.Send(msg); err != nil {
			h.l.Warn(context.Background(), "dropping slow debug observer", "entity_ID", c.entityID, "err", err.Error())
			h.Delete(c.entityID)
		}
	}
}

func (h *ConnectionHub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *ConnectionHub) Close() {
	h.mu.Lock()
	ids := make([]uuid.UUID, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	h.mu.Unlock()

	for _, id := range ids {
		h.Delete(id)
	}
	h.wg.Wait()
}

func (h *ConnectionHub) HealthLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.l.Info(ctx, "health loop stopped")
			return
		case <-ticker.C:
			h.mu.Lock()
			stale := make([]uuid.UUID, 0)
			for id, conn := range h.clients {
				if err := conn.Health(); err != nil {
					stale = append(stale, id)
				}
			}
			h.mu.Unlock()

			for _, id := range stale {
				h.l.Warn(ctx, "dead connection", "id", id)
				h.Delete(id)
			}
		}
	}
}
