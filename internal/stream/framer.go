package stream

import "bytes"

// DefaultMaxLineLength bounds the leftover a Framer keeps while waiting for a terminator.
const DefaultMaxLineLength = 1024 * 1024

// Framer splits an unaligned byte stream into newline-terminated lines.
// Partial data is carried across calls to Feed.
type Framer struct {
	leftover  []byte
	maxLen    int
	overflows int
}

func NewFramer(maxLineLength int) *Framer {
	if maxLineLength < 1 {
		maxLineLength = DefaultMaxLineLength
	}
	return &Framer{maxLen: maxLineLength}
}

// Feed appends chunk to the leftover and returns every complete line in
// arrival order, terminators stripped. The trailing segment is kept.
func (f *Framer) Feed(chunk []byte) []string {
	f.leftover = append(f.leftover, chunk...)

	var lines []string
	for {
		i := bytes.IndexByte(f.leftover, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, string(f.leftover[:i]))
		f.leftover = f.leftover[i+1:]
	}

	if len(f.leftover) > f.maxLen {
		f.leftover = nil
		f.overflows++
	}
	if len(f.leftover) == 0 {
		// release the consumed prefix of the backing array
		f.leftover = nil
	}
	return lines
}

// Flush returns the unterminated leftover, if any, and clears it.
func (f *Framer) Flush() (string, bool) {
	if len(f.leftover) == 0 {
		return "", false
	}
	line := string(f.leftover)
	f.leftover = nil
	return line, true
}

// Pending reports how many bytes are waiting for a terminator.
func (f *Framer) Pending() int { return len(f.leftover) }

// Overflows reports how many leftovers were discarded for exceeding the maximum line length.
func (f *Framer) Overflows() int { return f.overflows }
