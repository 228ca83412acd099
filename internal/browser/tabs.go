// Package browser mirrors the shell's tab and window focus state so the
// coordinator can ask which tab is active in the focused window.
package browser

import (
	"context"
	"sync"
)

// TabTracker records the active tab of each window and the focused window.
type TabTracker struct {
	mu            sync.RWMutex
	activeByWin   map[int]int
	windowOfTab   map[int]int
	focusedWindow int
	hasFocus      bool
}

// NewTabTracker creates an empty tracker.
func NewTabTracker() *TabTracker {
	return &TabTracker{
		activeByWin: make(map[int]int),
		windowOfTab: make(map[int]int),
	}
}

// Activate marks tabID as the active tab of windowID.
func (t *TabTracker) Activate(tabID, windowID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.activeByWin[windowID] = tabID
	t.windowOfTab[tabID] = windowID
	if !t.hasFocus {
		t.focusedWindow = windowID
		t.hasFocus = true
	}
}

// Focus marks windowID as the focused window.
func (t *TabTracker) Focus(windowID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.focusedWindow = windowID
	t.hasFocus = true
}

// Remove forgets tabID.
func (t *TabTracker) Remove(tabID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	win, ok := t.windowOfTab[tabID]
	if !ok {
		return
	}
	delete(t.windowOfTab, tabID)
	if t.activeByWin[win] == tabID {
		delete(t.activeByWin, win)
	}
}

// ActiveTab returns the active tab of the focused window.
func (t *TabTracker) ActiveTab(ctx context.Context) (int, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.hasFocus {
		return 0, false, nil
	}
	id, ok := t.activeByWin[t.focusedWindow]
	return id, ok, nil
}
