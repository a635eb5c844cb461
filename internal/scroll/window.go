// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package scroll computes the visible slice of a long append-only chat
// transcript so only a window of items is ever realized.
package scroll

import "sync"

// =============================================================================
// VIRTUAL SCROLL WINDOW
// =============================================================================

const (
	// DefaultItemHeight is the per-item height estimate in pixels.
	DefaultItemHeight = 150
	// DefaultOverscan is how many extra items are rendered on each side of
	// the viewport to avoid blank flashes during fast scrolling.
	DefaultOverscan = 3
)

// Window computes which transcript items must be rendered given a scroll
// offset and a per-item height estimate. The item list is append-only and
// may grow while the window is in use, so every computation re-derives from
// the current count.
//
// Thread-safety: all operations are protected by a mutex. Scrolling happens
// on user input while appends arrive from the streaming goroutine.
type Window struct {
	mu sync.Mutex

	itemCount      int
	itemHeight     int
	overscan       int
	viewportHeight int
	offset         int
}

// NewWindow creates a window with the given item height estimate and
// overscan. Non-positive values fall back to defaults.
func NewWindow(itemHeight, overscan int) *Window {
	if itemHeight <= 0 {
		itemHeight = DefaultItemHeight
	}
	if overscan < 0 {
		overscan = DefaultOverscan
	}
	return &Window{
		itemHeight: itemHeight,
		overscan:   overscan,
	}
}

// SetViewportHeight records the visible height of the scroll container.
func (w *Window) SetViewportHeight(h int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if h < 0 {
		h = 0
	}
	w.viewportHeight = h
	w.offset = w.clampLocked(w.offset)
}

// SetItemCount replaces the item count, e.g. when loading a session.
func (w *Window) SetItemCount(n int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if n < 0 {
		n = 0
	}
	w.itemCount = n
	w.offset = w.clampLocked(w.offset)
}

// Append records n newly appended items. The offset is left alone: growing
// the transcript must not yank the viewport away from what the user reads.
func (w *Window) Append(n int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if n > 0 {
		w.itemCount += n
	}
}

// ItemCount returns the current number of items.
func (w *Window) ItemCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.itemCount
}

// TotalHeight returns the full scrollable extent: itemCount * itemHeight.
// The scroll container reports this even though only a window is realized.
func (w *Window) TotalHeight() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.itemCount * w.itemHeight
}

// OffsetOf returns the absolute vertical offset of item i.
func (w *Window) OffsetOf(i int) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return i * w.itemHeight
}

// Offset returns the current scroll offset.
func (w *Window) Offset() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.offset
}

// ScrollTo sets the scroll offset, clamped to the valid range.
func (w *Window) ScrollTo(offset int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.offset = w.clampLocked(offset)
}

// ScrollToIndex adjusts the offset so item i sits at the top of the
// viewport (clamped near the end of the list).
func (w *Window) ScrollToIndex(i int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if i < 0 {
		i = 0
	}
	w.offset = w.clampLocked(i * w.itemHeight)
}

// ScrollToBottom pins the viewport to the newest item. Correct while items
// are still being appended because it derives from the current count.
func (w *Window) ScrollToBottom() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.offset = w.maxOffsetLocked()
}

// AtBottom reports whether the viewport is pinned to the newest item.
func (w *Window) AtBottom() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.offset >= w.maxOffsetLocked()
}

// VisibleRange returns the inclusive index range [start, end] of items that
// must be rendered for the current offset: everything intersecting the
// viewport plus overscan items on each side. Returns (0, -1) for an empty
// list.
func (w *Window) VisibleRange() (start, end int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.itemCount == 0 {
		return 0, -1
	}

	start = w.offset/w.itemHeight - w.overscan
	if start < 0 {
		start = 0
	}

	// Last pixel of the viewport, inclusive.
	bottom := w.offset + w.viewportHeight
	if w.viewportHeight > 0 {
		bottom--
	}
	end = bottom/w.itemHeight + w.overscan
	if end >= w.itemCount {
		end = w.itemCount - 1
	}
	if end < start {
		end = start
	}
	return start, end
}

// clampLocked bounds an offset to [0, maxOffset]. Callers hold w.mu.
func (w *Window) clampLocked(offset int) int {
	if offset < 0 {
		return 0
	}
	if max := w.maxOffsetLocked(); offset > max {
		return max
	}
	return offset
}

// maxOffsetLocked is the largest useful offset: total height minus one
// viewport. Callers hold w.mu.
func (w *Window) maxOffsetLocked() int {
	max := w.itemCount*w.itemHeight - w.viewportHeight
	if max < 0 {
		max = 0
	}
	return max
}
