// Package server exposes the chat service over HTTP.
//
// Routes:
//
//	GET  /healthz
//	GET  /usage                          token usage and estimated cost
//	GET  /sessions                       session summaries
//	GET  /schemas/{name}                 JSON Schema of a request body
//	GET  /chat/init-stats-debug?cluster_name=NAME
//	POST /chat/seed/stats                {"text": "...", "cluster_name": "..."}
//	POST /chat/seed/timeseries           {"records": [{...}, ...]}
//	POST /chat/send                      {"message": "...", "metric": "stats"}
//	POST /chat/tool-query                {"message": "...", "cluster_name": "..."}
//
// Request bodies are validated against JSON Schemas reflected from the
// request structs. Errors are returned as {"error": "...", "retryable": bool}
// with the status chosen by statusFor.
package server
