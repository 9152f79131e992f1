// Package truncate cuts diagnostic text down to size.
//
// Allocate divides a fixed character budget evenly between several raw
// sources (hot threads, task lists, node stats) so a seeded session starts
// from a bounded context:
//
//	parts, err := truncate.Allocate([]string{hotThreads, tasks}, 20000)
//
// A Truncator fits a single text into a token limit, either keeping its
// head or keeping both ends and dropping the middle:
//
//	tr := truncate.NewTruncator(counter, truncate.KeepEnds)
//	fitted, cut := tr.Truncate(text, maxTokens)
//
// Everything counts runes rather than bytes, so multi-byte characters are
// never split.
package truncate
