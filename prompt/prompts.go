package prompt

import (
	"fmt"
	"strings"
)

// Set holds every prompt the chat engine uses. Zero-valued fields fall
// back to the defaults.
type Set struct {
	// StatsPreamble frames a session seeded with node diagnostics.
	StatsPreamble string `yaml:"stats_preamble" toml:"stats_preamble"`
	// TimeSeriesPreamble frames a session seeded with a metric series.
	TimeSeriesPreamble string `yaml:"timeseries_preamble" toml:"timeseries_preamble"`
	// ToolPreamble frames a tool-query session. Variables: cluster.
	ToolPreamble string `yaml:"tool_preamble" toml:"tool_preamble"`
	// Classify asks whether live data is needed.
	Classify string `yaml:"classify" toml:"classify"`
	// AnswerDirect asks for an answer from history alone.
	AnswerDirect string `yaml:"answer_direct" toml:"answer_direct"`
	// RequestEndpoint asks for one read-only endpoint. Variables: denied.
	RequestEndpoint string `yaml:"request_endpoint" toml:"request_endpoint"`
	// Incorporate binds fetched data to the question. Variables: endpoint, payload.
	Incorporate string `yaml:"incorporate" toml:"incorporate"`
	// Apology is returned verbatim when a fetch fails.
	Apology string `yaml:"apology" toml:"apology"`
}

const (
	defaultStatsPreamble = `You are an Elasticsearch diagnostics analyst. The next message contains live diagnostic output from a cluster (hot threads, running tasks, cluster and JVM statistics). Use it to answer the user's questions about performance, resource pressure and stuck work. Be concise and cite the node or task you are talking about. Do not include your internal reasoning.`

	defaultTimeSeriesPreamble = `You are a time-series analyst for Elasticsearch cluster metrics. The next message contains an ordered series of metric values. Describe trends, spikes and anomalies, and answer the user's questions using only that series. Do not include your internal reasoning.`

	defaultToolPreamble = `You are an Elasticsearch operations assistant connected to the cluster "{{cluster}}". You can read live data from the cluster's REST API when a question needs it. Answer precisely and do not include your internal reasoning.`

	defaultClassify = `Does answering the user's last question require fetching live data from the cluster? Respond with exactly "yes" or "no" and nothing else.`

	defaultAnswerDirect = `Answer the user's last question using only the information already present in this conversation.`

	defaultRequestEndpoint = `Reply with exactly one read-only Elasticsearch REST endpoint that would answer the user's last question, for example "_cat/indices?v" or "_cluster/health". Reply with the endpoint only: no HTTP verb other than GET, no explanation, no code fences. Do not use endpoints that need a node id, shard number or index name the user has not given; prefer listing endpoints such as _cat/shards or _cat/allocation instead.{{#if denied}} Never use endpoints matching any of:{{#each denied}} {{this}}{{/each}}.{{/if}}`

	defaultIncorporate = `Answer the user's question using this endpoint's output: {{endpoint}}: {{payload}}`

	defaultApology = `Sorry, I couldn't fetch the data needed to answer that from the cluster. Please try again or rephrase the question.`
)

// Default returns the built-in prompt set.
func Default() Set {
	return Set{
		StatsPreamble:      defaultStatsPreamble,
		TimeSeriesPreamble: defaultTimeSeriesPreamble,
		ToolPreamble:       defaultToolPreamble,
		Classify:           defaultClassify,
		AnswerDirect:       defaultAnswerDirect,
		RequestEndpoint:    defaultRequestEndpoint,
		Incorporate:        defaultIncorporate,
		Apology:            defaultApology,
	}
}

// WithDefaults returns s with empty fields filled from Default.
func (s Set) WithDefaults() Set {
	d := Default()
	fill := func(dst *string, def string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = def
		}
	}
	fill(&s.StatsPreamble, d.StatsPreamble)
	fill(&s.TimeSeriesPreamble, d.TimeSeriesPreamble)
	fill(&s.ToolPreamble, d.ToolPreamble)
	fill(&s.Classify, d.Classify)
	fill(&s.AnswerDirect, d.AnswerDirect)
	fill(&s.RequestEndpoint, d.RequestEndpoint)
	fill(&s.Incorporate, d.Incorporate)
	fill(&s.Apology, d.Apology)
	return s
}

// Compiled is a Set with its templated prompts parsed.
type Compiled struct {
	Set
	tool        *Template
	request     *Template
	incorporate *Template
}

// Compile fills defaults and parses the templated prompts.
func (s Set) Compile() (*Compiled, error) {
	s = s.WithDefaults()
	c := &Compiled{Set: s}

	var err error
	if c.tool, err = Compile("tool_preamble", s.ToolPreamble); err != nil {
		return nil, err
	}
	if c.request, err = Compile("request_endpoint", s.RequestEndpoint); err != nil {
		return nil, err
	}
	if c.incorporate, err = Compile("incorporate", s.Incorporate); err != nil {
		return nil, err
	}

	// Surface missing variables now rather than on the first tool turn.
	if _, err := c.ToolPreambleFor("sample"); err != nil {
		return nil, err
	}
	if _, err := c.RequestEndpointNote(nil); err != nil {
		return nil, err
	}
	if _, err := c.IncorporateNote("sample", "sample"); err != nil {
		return nil, err
	}
	return c, nil
}

// MustDefault compiles the default set.
func MustDefault() *Compiled {
	c, err := Default().Compile()
	if err != nil {
		panic(fmt.Sprintf("prompt: default set does not compile: %v", err))
	}
	return c
}

// ToolPreambleFor renders the tool preamble for a cluster.
func (c *Compiled) ToolPreambleFor(cluster string) (string, error) {
	return c.tool.Render(map[string]any{"cluster": cluster})
}

// RequestEndpointNote renders the endpoint request with the denylist.
func (c *Compiled) RequestEndpointNote(denied []string) (string, error) {
	return c.request.Render(map[string]any{"denied": denied})
}

// IncorporateNote renders the note binding a fetched payload to the
// question.
func (c *Compiled) IncorporateNote(endpoint, payload string) (string, error) {
	return c.incorporate.Render(map[string]any{
		"endpoint": endpoint,
		"payload":  payload,
	})
}
