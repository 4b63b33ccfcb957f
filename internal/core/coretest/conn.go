// Package coretest provides in-memory transports for tests.
package coretest

import (
	"encoding/json"
	"sync"

	"github.com/dkeye/groupchat/internal/core"
	"github.com/dkeye/groupchat/internal/domain"
)

// Conn records every frame sent to it.
type Conn struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
	// Full makes TrySend fail with core.ErrBackpressure.
	Full bool
}

func NewConn() *Conn { return &Conn{} }

func (c *Conn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrSessionClosed
	}
	if c.Full {
		return core.ErrBackpressure
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Received is a decoded frame whose data is kept raw.
type Received struct {
	Type domain.EventType `json:"type"`
	Data json.RawMessage  `json:"data"`
}

// Events decodes every recorded frame in order.
func (c *Conn) Events() []Received {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Received, 0, len(c.frames))
	for _, f := range c.frames {
		var r Received
		if err := json.Unmarshal(f, &r); err == nil {
			out = append(out, r)
		}
	}
	return out
}

// OfType returns the recorded events with the given type.
func (c *Conn) OfType(t domain.EventType) []Received {
	var out []Received
	for _, r := range c.Events() {
		if r.Type == t {
			out = append(out, r)
		}
	}
	return out
}

func (c *Conn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

// NewSession returns a session over a fresh recording Conn.
func NewSession(id string) (*core.Session, *Conn) {
	c := NewConn()
	return core.NewSession(core.SessionID(id), c), c
}
