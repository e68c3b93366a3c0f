package session

import (
	"context"
	"sync"

	"siteplan/internal/capability"
	"siteplan/internal/raster"
	"siteplan/internal/snapshot"
)

// Manager hands out one executor per session ID. The first request for an
// ID restores its snapshot; later requests share the same executor.
type Manager struct {
	caps  capability.Adapter
	rast  raster.Rasterizer
	snaps snapshot.Store

	rasterMaxDim int

	mu    sync.Mutex
	execs map[string]*Executor
}

func NewManager(caps capability.Adapter, rast raster.Rasterizer, snaps snapshot.Store) *Manager {
	return &Manager{
		caps:         caps,
		rast:         rast,
		snaps:        snaps,
		rasterMaxDim: defaultRasterDim,
		execs:        make(map[string]*Executor),
	}
}

// SetRasterMaxDim bounds the longest edge of rasterized surveys for
// executors created after the call.
func (m *Manager) SetRasterMaxDim(dim int) {
	if dim > 0 {
		m.mu.Lock()
		m.rasterMaxDim = dim
		m.mu.Unlock()
	}
}

// Get returns the executor for a session, creating and restoring it on
// first use.
func (m *Manager) Get(ctx context.Context, id string) *Executor {
	m.mu.Lock()
	x, ok := m.execs[id]
	if !ok {
		x = NewExecutor(id, m.caps, m.rast, m.snaps)
		x.maxRasterDim = m.rasterMaxDim
		m.execs[id] = x
	}
	m.mu.Unlock()
	x.Restore(ctx)
	return x
}

// Drop forgets the in-memory executor for a session. The durable snapshot
// is left alone; a later Get restores from it.
func (m *Manager) Drop(id string) {
	m.mu.Lock()
	delete(m.execs, id)
	m.mu.Unlock()
}
