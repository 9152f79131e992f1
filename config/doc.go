// Package config loads the esdiag server configuration.
//
// A single file is read, YAML or TOML by extension, then ESDIAG_* environment
// variables are applied on top:
//
//	listen: ":8080"
//	engine:
//	  provider: groq
//	  model: deepseek-r1-distill-llama-70b
//	  api_key_env: GROQ_API_KEY
//	history:
//	  token_budget: 6000
//	  payload_cap: 20000
//	seed:
//	  total_budget: 20000
//	fetch:
//	  timeout: 30s
//	clusters:
//	  prod:
//	    url: https://es-prod:9200
//	    username: elastic
//
// Watch reports later edits to the file so the cluster registry can be
// swapped without a restart.
package config
