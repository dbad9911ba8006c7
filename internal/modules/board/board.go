// Package board holds the client-side view of one category's ordered assets
// and the logic that keeps it in step with the server: optimistic reorders
// with rollback, and removal of rows deleted by other sessions.
package board

import (
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/portfoliocms/assetsync/internal/modules/model"
)

// Board is the displayed, ordered list of one category's assets.
// Sentinel rows are never held.
type Board struct {
	category model.Category

	mu        sync.RWMutex
	rows      []model.Asset
	listeners []func([]model.Asset)

	// tombstones records ids removed while a reorder is in flight, so a
	// rollback does not bring them back.
	pending    bool
	tombstones map[uuid.UUID]struct{}
}

func New(category model.Category, rows []model.Asset) *Board {
	b := &Board{category: category, tombstones: make(map[uuid.UUID]struct{})}
	b.rows = b.filter(rows)
	return b
}

func (b *Board) Category() model.Category { return b.category }

// Snapshot returns a copy of the displayed rows in display order.
func (b *Board) Snapshot() []model.Asset {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.rows)
}

func (b *Board) IDs() []uuid.UUID {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ids := make([]uuid.UUID, len(b.rows))
	for i, a := range b.rows {
		ids[i] = a.ID
	}
	return ids
}

func (b *Board) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rows)
}

func (b *Board) Has(id uuid.UUID) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.indexOf(id) >= 0
}

// Replace swaps the displayed rows, as after a full reload.
func (b *Board) Replace(rows []model.Asset) {
	b.mu.Lock()
	b.rows = b.filter(rows)
	snap := slices.Clone(b.rows)
	b.mu.Unlock()
	b.notify(snap)
}

// Remove drops the row with id. It reports false if the board did not hold it.
func (b *Board) Remove(id uuid.UUID) bool {
	b.mu.Lock()
	i := b.indexOf(id)
	if i < 0 {
		b.mu.Unlock()
		return false
	}
	b.rows = slices.Delete(b.rows, i, i+1)
	if b.pending {
		b.tombstones[id] = struct{}{}
	}
	snap := slices.Clone(b.rows)
	b.mu.Unlock()
	b.notify(snap)
	return true
}

// OnChange registers fn to receive a copy of the rows after every change.
// fn runs on the goroutine that made the change and must not block.
func (b *Board) OnChange(fn func([]model.Asset)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, fn)
}

func (b *Board) beginPending() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = true
	clear(b.tombstones)
}

func (b *Board) endPending() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = false
	clear(b.tombstones)
}

// show displays rows while a reorder is pending, skipping anything
// removed since beginPending.
func (b *Board) show(rows []model.Asset) {
	b.mu.Lock()
	b.rows = b.withoutTombstones(rows)
	snap := slices.Clone(b.rows)
	b.mu.Unlock()
	b.notify(snap)
}

// restore puts rows back, minus anything removed since beginPending, and
// ends the pending state.
func (b *Board) restore(rows []model.Asset) {
	b.mu.Lock()
	b.rows = b.withoutTombstones(rows)
	b.pending = false
	clear(b.tombstones)
	snap := slices.Clone(b.rows)
	b.mu.Unlock()
	b.notify(snap)
}

func (b *Board) withoutTombstones(rows []model.Asset) []model.Asset {
	kept := make([]model.Asset, 0, len(rows))
	for _, a := range rows {
		if _, gone := b.tombstones[a.ID]; gone {
			continue
		}
		kept = append(kept, a)
	}
	return kept
}

func (b *Board) indexOf(id uuid.UUID) int {
	return slices.IndexFunc(b.rows, func(a model.Asset) bool { return a.ID == id })
}

func (b *Board) filter(rows []model.Asset) []model.Asset {
	out := make([]model.Asset, 0, len(rows))
	for _, a := range rows {
		if a.IsSentinel() || (a.Category != "" && a.Category != b.category) {
			continue
		}
		out = append(out, a)
	}
	return out
}

func (b *Board) notify(rows []model.Asset) {
	b.mu.RLock()
	listeners := slices.Clone(b.listeners)
	b.mu.RUnlock()
	for _, fn := range listeners {
		fn(slices.Clone(rows))
	}
}
