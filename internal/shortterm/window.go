// Package shortterm holds the bounded window of recent conversation turns.
// Nothing here is persisted.
package shortterm

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rcliao/aide/internal/model"
)

const (
	// SummaryMessages is how many trailing messages Summarize renders.
	SummaryMessages = 10
	// SummaryContentRunes bounds each rendered message.
	SummaryContentRunes = 200
)

// Window is a bounded FIFO of conversation turns. It is safe for concurrent use.
type Window struct {
	mu       sync.Mutex
	items    []model.Message
	capacity int
}

// NewWindow returns a window holding at most capacity messages.
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{capacity: capacity}
}

// Append pushes msg, evicting the oldest messages beyond capacity.
func (w *Window) Append(msg model.Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	w.items = append(w.items, msg)
	if len(w.items) > w.capacity {
		w.items = append([]model.Message(nil), w.items[len(w.items)-w.capacity:]...)
	}
}

// Snapshot returns a copy of the window, oldest first.
func (w *Window) Snapshot() []model.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]model.Message, len(w.items))
	copy(out, w.items)
	return out
}

// Len returns the number of messages held.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.items)
}

// Capacity returns the maximum number of messages held.
func (w *Window) Capacity() int { return w.capacity }

// Clear empties the window.
func (w *Window) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.items = nil
}

// LastUserMessage returns the most recent user turn, if any.
func (w *Window) LastUserMessage() (model.Message, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := len(w.items) - 1; i >= 0; i-- {
		if w.items[i].Role == model.RoleUser {
			return w.items[i], true
		}
	}
	return model.Message{}, false
}

// Summarize renders the last messages as "[role]: content" lines. Returns ""
// for an empty window.
func (w *Window) Summarize() string {
	msgs := w.Snapshot()
	if len(msgs) > SummaryMessages {
		msgs = msgs[len(msgs)-SummaryMessages:]
	}
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, fmt.Sprintf("[%s]: %s", m.Role, model.Truncate(m.Content, SummaryContentRunes)))
	}
	return strings.Join(lines, "\n")
}
