package logic

import (
	"strings"
	"time"
)

// Classify maps a blink duration to a symbol. The boundary itself is a dash.
func Classify(d, dotTime time.Duration) Symbol {
	if d < dotTime {
		return Dot
	}
	return Dash
}

// Assembler buffers symbols for the character in progress.
type Assembler struct {
	buf []Symbol
}

// OnSymbol appends a symbol. Nothing is committed here.
func (a *Assembler) OnSymbol(s Symbol) {
	a.buf = append(a.buf, s)
}

// OnCharacterGapElapsed resolves the buffer into a character and clears it.
// Unknown patterns resolve to UnknownChar. Returns false when the buffer was
// empty, e.g. a stray timer after a reset.
func (a *Assembler) OnCharacterGapElapsed() (rune, bool) {
	if len(a.buf) == 0 {
		return 0, false
	}
	seq := a.Buffer()
	a.buf = a.buf[:0]

	if r, ok := Lookup(seq); ok {
		return r, true
	}
	return UnknownChar, true
}

// OnWordGapElapsed always yields a word separator.
func (a *Assembler) OnWordGapElapsed() rune {
	return WordSeparator
}

// Reset clears the buffer.
func (a *Assembler) Reset() {
	a.buf = a.buf[:0]
}

// Buffer returns the pending pattern, e.g. "-.-".
func (a *Assembler) Buffer() string {
	var sb strings.Builder
	sb.Grow(len(a.buf))
	for _, s := range a.buf {
		sb.WriteByte(byte(s))
	}
	return sb.String()
}

// Len returns the number of pending symbols.
func (a *Assembler) Len() int {
	return len(a.buf)
}
