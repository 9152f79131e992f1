// Package fetch reads diagnostic data from Elasticsearch clusters.
//
// The Fetcher contract treats failure as a value: Fetch never returns an
// error, it returns a Result whose OK flag is false and whose Err explains
// why. Ordinary "no data" conditions (HTTP errors, empty bodies, unknown
// clusters) are failures, not panics or errors, so the dispatch protocol
// can answer politely and keep the session usable.
//
//	reg := fetch.NewRegistry()
//	reg.Set(map[string]fetch.Cluster{"prod": {URL: "https://es.internal:9200"}})
//
//	f := fetch.NewElasticsearch(reg, fetch.WithTimeout(20*time.Second))
//	res := f.Fetch(ctx, fetch.Request{ClusterID: "prod", Path: "_cat/indices?v"})
//	if !res.OK {
//	    log.Println(res.Err)
//	}
//
// Policy is the mechanical half of the endpoint denylist. The reasoning
// engine is told which endpoints to avoid; Policy checks what it actually
// asked for before anything is sent to a cluster.
package fetch
