package truncate

import (
	"errors"
	"unicode/utf8"
)

// ErrNoSources is returned by Allocate when there is nothing to divide the
// budget between.
var ErrNoSources = errors.New("truncate: no sources to allocate budget across")

// Head returns the first n runes of text. Unlike the Truncator it never
// appends a marker, so the result length is exactly min(n, len(text)) runes.
func Head(text string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= n {
		return text
	}

	// Walk the string instead of converting it to a rune slice; payloads
	// handed to Head are often several megabytes.
	count := 0
	for i := range text {
		if count == n {
			return text[:i]
		}
		count++
	}
	return text
}

// Allocate splits totalBudget characters evenly across sources and cuts
// each source to its share. Every source gets floor(totalBudget/len(sources))
// characters regardless of how long it is, so the output never exceeds
// totalBudget in total. Output order matches input order.
//
// A budget smaller than the number of sources is valid and yields empty
// strings. An empty source list returns ErrNoSources.
func Allocate(sources []string, totalBudget int) ([]string, error) {
	perSource, err := PerSource(len(sources), totalBudget)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(sources))
	for i, src := range sources {
		out[i] = Head(src, perSource)
	}
	return out, nil
}

// PerSource returns the share of totalBudget each of count sources gets.
// A negative budget gives every source nothing.
func PerSource(count, totalBudget int) (int, error) {
	if count <= 0 {
		return 0, ErrNoSources
	}
	if totalBudget < 0 {
		return 0, nil
	}
	return totalBudget / count, nil
}
