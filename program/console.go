package main

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type consoleLine struct {
	at   time.Time
	text string
}

// console keeps the most recent raw input lines. Append runs on the reader
// goroutine; the UI renders on its own tick.
type console struct {
	mu    sync.Mutex
	max   int
	lines []consoleLine
	now   func() time.Time
	dirty atomic.Bool
}

func newConsole(max int) *console {
	if max <= 0 {
		max = 1
	}
	return &console{max: max, now: time.Now}
}

func (c *console) Append(line string) {
	c.mu.Lock()
	c.lines = append(c.lines, consoleLine{at: c.now(), text: strings.TrimRight(line, "\r")})
	c.trim()
	c.mu.Unlock()
	c.dirty.Store(true)
}

// Echo records an outgoing command the way it was sent.
func (c *console) Echo(cmd string) {
	c.Append("> " + cmd)
}

func (c *console) trim() {
	if len(c.lines) > c.max {
		drop := len(c.lines) - c.max
		clear(c.lines[:drop])
		c.lines = c.lines[drop:]
	}
}

func (c *console) SetMax(max int) {
	c.mu.Lock()
	c.max = max
	c.trim()
	c.mu.Unlock()
	c.dirty.Store(true)
}

func (c *console) Clear() {
	c.mu.Lock()
	c.lines = nil
	c.mu.Unlock()
	c.dirty.Store(true)
}

func (c *console) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines)
}

// takeDirty reports whether lines changed since the last call.
func (c *console) takeDirty() bool {
	return c.dirty.Swap(false)
}

func (c *console) Render(timestamps bool) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var sb strings.Builder
	for i, l := range c.lines {
		if i > 0 {
			sb.WriteByte('\n')
		}
		if timestamps {
			sb.WriteString(l.at.Format("15:04:05.000"))
			sb.WriteString(" -> ")
		}
		sb.WriteString(l.text)
	}
	return sb.String()
}
