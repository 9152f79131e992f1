package truncate

import "github.com/randalmurphal/esdiag/tokens"

// Strategy selects which part of an oversized text is dropped.
type Strategy int

const (
	// KeepHead drops the end of the text.
	KeepHead Strategy = iota
	// KeepEnds drops the middle, keeping the first and last parts.
	KeepEnds
)

// DefaultMarker is inserted where text was removed.
const DefaultMarker = "\n...[truncated]...\n"

// Truncator fits text into a token limit.
type Truncator struct {
	counter  tokens.Counter
	strategy Strategy
	marker   string
}

// NewTruncator creates a truncator. A nil counter uses the character
// estimate from the tokens package.
func NewTruncator(counter tokens.Counter, strategy Strategy) *Truncator {
	if counter == nil {
		counter = tokens.NewEstimatingCounter()
	}
	return &Truncator{counter: counter, strategy: strategy, marker: DefaultMarker}
}

// WithMarker replaces the text inserted at the cut.
func (t *Truncator) WithMarker(marker string) *Truncator {
	t.marker = marker
	return t
}

// Truncate returns text cut to at most maxTokens, and whether anything was
// removed. When not even the marker fits, the result is empty.
func (t *Truncator) Truncate(text string, maxTokens int) (string, bool) {
	if t.counter.Count(text) <= maxTokens {
		return text, false
	}

	runes := []rune(text)
	room := maxTokens - t.counter.Count(t.marker)
	// Token counts of the pieces need not add up to the count of the whole,
	// so shrink until the joined result fits.
	for ; room > 0; room-- {
		out := t.cut(runes, room)
		if t.counter.Count(out) <= maxTokens {
			return out, true
		}
	}
	if t.counter.Count(t.marker) <= maxTokens {
		return t.marker, true
	}
	return "", true
}

func (t *Truncator) cut(runes []rune, room int) string {
	if t.strategy != KeepEnds {
		head := t.prefixLen(runes, room)
		return string(runes[:head]) + t.marker
	}

	head := t.prefixLen(runes, room/2)
	used := t.counter.Count(string(runes[:head]))
	rest := runes[head:]
	tail := t.suffixLen(rest, room-used)
	return string(runes[:head]) + t.marker + string(rest[len(rest)-tail:])
}

// prefixLen returns the most leading runes that fit in limit tokens.
func (t *Truncator) prefixLen(runes []rune, limit int) int {
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if t.counter.Count(string(runes[:mid])) <= limit {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

// suffixLen returns the most trailing runes that fit in limit tokens.
func (t *Truncator) suffixLen(runes []rune, limit int) int {
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if t.counter.Count(string(runes[len(runes)-mid:])) <= limit {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}
