package check

import (
	"sync"
	"time"
)

// LogTail is how many of the most recent console lines a report carries
const LogTail = 10

// Entry is one console line collected from the page
type Entry struct {
	Level string
	Text  string
	Time  time.Time
}

func (e Entry) String() string {
	return "[" + e.Level + "] " + e.Text
}

// Buffer collects console lines for the lifetime of one run. Engines deliver
// events on their own goroutines, so every method locks.
type Buffer struct {
	mu      sync.Mutex
	entries []Entry
	now     func() time.Time
}

func NewBuffer() *Buffer {
	return &Buffer{now: time.Now}
}

// Add appends a line; it has the browser.ConsoleFunc signature
func (b *Buffer) Add(level, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, Entry{Level: level, Text: text, Time: b.now()})
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Tail returns a copy of at most n most recent entries, oldest first
func (b *Buffer) Tail(n int) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n <= 0 {
		return nil
	}
	start := len(b.entries) - n
	if start < 0 {
		start = 0
	}
	out := make([]Entry, len(b.entries)-start)
	copy(out, b.entries[start:])
	return out
}
