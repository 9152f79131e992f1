// Package chat is the diagnostic chat service behind the HTTP API.
//
// It owns three kinds of session:
//
//   - "stats": seeded with diagnostic text, either supplied by the caller
//     or collected from a cluster by InitStatsDebug.
//   - "timeseries": seeded with one metric series.
//   - "tool:<cluster>": created on the first ToolQuery for a cluster; every
//     turn runs the tool dispatch protocol against that cluster.
//
// Seeding replaces a session's history. Plain chat turns (Send) answer from
// the seeded history; tool turns may fetch one endpoint per question.
package chat
