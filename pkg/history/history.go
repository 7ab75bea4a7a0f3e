// Package history provides the sent command history
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultCapacity is the number of commands kept before the oldest is evicted
const DefaultCapacity = 100

// CommandHistory is a bounded FIFO of sent commands with a recall cursor.
// The cursor ranges over [0, Len()]; Len() means nothing is selected.
type CommandHistory struct {
	mu       sync.RWMutex
	entries  []string
	cursor   int
	capacity int
}

// NewCommandHistory creates an empty history holding at most capacity entries
func NewCommandHistory(capacity int) *CommandHistory {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &CommandHistory{
		entries:  make([]string, 0, capacity),
		capacity: capacity,
	}
}

// Push records a command, evicting the oldest one when full, and moves the
// cursor past the end.
func (h *CommandHistory) Push(command string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.push(command)
}

func (h *CommandHistory) push(command string) {
	if len(h.entries) >= h.capacity {
		drop := len(h.entries) - h.capacity + 1
		copy(h.entries, h.entries[drop:])
		h.entries = h.entries[:len(h.entries)-drop]
	}

	h.entries = append(h.entries, command)
	h.cursor = len(h.entries)
}

// RecallPrevious moves the cursor towards older commands. It reports
// whether the cursor moved.
func (h *CommandHistory) RecallPrevious() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cursor > 0 {
		h.cursor--
		return true
	}
	return false
}

// RecallNext moves the cursor towards newer commands, stopping at the most
// recent one. It reports whether the cursor moved.
func (h *CommandHistory) RecallNext() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cursor < len(h.entries)-1 {
		h.cursor++
		return true
	}
	return false
}

// Current returns the command under the cursor, or "" past the end
func (h *CommandHistory) Current() string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.cursor >= 0 && h.cursor < len(h.entries) {
		return h.entries[h.cursor]
	}
	return ""
}

// Len returns the number of stored commands
func (h *CommandHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.entries)
}

// Cursor returns the cursor position
func (h *CommandHistory) Cursor() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.cursor
}

// Capacity returns the maximum number of stored commands
func (h *CommandHistory) Capacity() int {
	return h.capacity
}

// Entries returns a copy of the stored commands, oldest first
func (h *CommandHistory) Entries() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make([]string, len(h.entries))
	copy(result, h.entries)
	return result
}

// Clear removes every command
func (h *CommandHistory) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = h.entries[:0]
	h.cursor = 0
}

// historyFile is the on-disk format written by SaveFile
type historyFile struct {
	Commands []string  `json:"commands"`
	Count    int       `json:"count"`
	SavedAt  time.Time `json:"saved_at"`
}

// SaveFile writes the history to filename as JSON
func (h *CommandHistory) SaveFile(filename string) error {
	if filename == "" {
		return fmt.Errorf("filename cannot be empty")
	}

	entries := h.Entries()
	data, err := json.MarshalIndent(historyFile{
		Commands: entries,
		Count:    len(entries),
		SavedAt:  time.Now(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	// Write to temporary file first, then rename for atomic operation
	tempPath := filename + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary history file: %w", err)
	}

	if err := os.Rename(tempPath, filename); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temporary history file: %w", err)
	}

	return nil
}

// LoadFile replaces the history with the commands stored in filename. Only
// the newest Capacity() commands are kept. A missing file leaves the history
// empty and is not an error.
func (h *CommandHistory) LoadFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			h.Clear()
			return nil
		}
		return fmt.Errorf("failed to read file: %w", err)
	}

	var stored historyFile
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("failed to parse history file: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = h.entries[:0]
	for _, command := range stored.Commands {
		h.push(command)
	}
	h.cursor = len(h.entries)

	return nil
}
