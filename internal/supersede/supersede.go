// Package supersede implements last-request-wins cancellation.
//
// Each category of operation (track load, volume fade, proxy probe) owns a
// Group. Begin cancels whatever the group was running and hands out a new Op;
// holders of the old Op can tell they were replaced and must stay silent.
package supersede

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Group tracks the current operation of one category.
type Group struct {
	mu      sync.Mutex
	name    string
	current *Op
}

// Op is one operation handed out by a Group.
type Op struct {
	ID     string
	ctx    context.Context
	cancel context.CancelFunc
	group  *Group
}

// NewGroup creates a group; the name only shows up in logs.
func NewGroup(name string) *Group {
	return &Group{name: name}
}

// Begin cancels the running operation, if any, and starts a new one derived
// from parent.
func (g *Group) Begin(parent context.Context) *Op {
	ctx, cancel := context.WithCancel(parent)
	op := &Op{
		ID:     uuid.NewString(),
		ctx:    ctx,
		cancel: cancel,
		group:  g,
	}

	g.mu.Lock()
	prev := g.current
	g.current = op
	g.mu.Unlock()

	if prev != nil {
		log.Debug().Str("group", g.name).Str("op", prev.ID).Str("by", op.ID).Msg("Operation superseded")
		prev.cancel()
	}
	return op
}

// Cancel stops the running operation without starting a new one.
func (g *Group) Cancel() {
	g.mu.Lock()
	prev := g.current
	g.current = nil
	g.mu.Unlock()

	if prev != nil {
		prev.cancel()
	}
}

// Current returns the running operation, or nil.
func (g *Group) Current() *Op {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// Context is canceled as soon as the op is superseded or its group canceled.
func (o *Op) Context() context.Context {
	return o.ctx
}

// Superseded reports whether a newer op replaced this one, or the group was
// canceled.
func (o *Op) Superseded() bool {
	o.group.mu.Lock()
	defer o.group.mu.Unlock()
	return o.group.current != o
}

// Finish releases the op's context if it is still the current one, leaving
// the group idle.
func (o *Op) Finish() {
	o.group.mu.Lock()
	if o.group.current == o {
		o.group.current = nil
	}
	o.group.mu.Unlock()
	o.cancel()
}
