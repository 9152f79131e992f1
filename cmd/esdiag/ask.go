package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/pflag"
)

type askOptions struct {
	server  string
	cluster string
	metric  string
	raw     bool
	style   string
	width   int
	timeout time.Duration
}

type askReply struct {
	Reply           string `json:"reply"`
	ToolCall        bool   `json:"toolCall"`
	Endpoint        string `json:"endpoint"`
	PolicyViolation string `json:"policyViolation"`
	Error           string `json:"error"`
	Retryable       bool   `json:"retryable"`
}

func runAsk(args []string) error {
	var opts askOptions
	fs := pflag.NewFlagSet("esdiag ask", pflag.ContinueOnError)
	fs.StringVar(&opts.server, "server", envOr("ESDIAG_SERVER", "http://localhost:8080"), "esdiag server URL")
	fs.StringVar(&opts.cluster, "cluster", "", "cluster to query with live data")
	fs.StringVar(&opts.metric, "metric", "", "ask a seeded session instead: stats or timeseries")
	fs.BoolVar(&opts.raw, "raw", false, "print the reply without markdown rendering")
	fs.StringVar(&opts.style, "style", "dark", "glamour style: dark, light, notty, ascii")
	fs.IntVar(&opts.width, "width", 100, "word-wrap width for rendered replies")
	fs.DurationVar(&opts.timeout, "timeout", 2*time.Minute, "request timeout")
	if help, err := parseFlags(fs, args); help || err != nil {
		return err
	}

	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		return errors.New("ask: a question is required")
	}
	if (opts.cluster == "") == (opts.metric == "") {
		return errors.New("ask: exactly one of --cluster or --metric is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	reply, err := ask(ctx, http.DefaultClient, opts, question)
	if err != nil {
		return err
	}

	if reply.PolicyViolation != "" {
		fmt.Fprintf(os.Stderr, "refused endpoint: %s\n", reply.PolicyViolation)
	} else if reply.ToolCall {
		fmt.Fprintf(os.Stderr, "fetched: %s\n", reply.Endpoint)
	}
	out, err := render(reply.Reply, opts)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

// ask sends question to the tool-query route, or to the plain chat route
// when a metric is given.
func ask(ctx context.Context, client *http.Client, opts askOptions, question string) (askReply, error) {
	path, body := "/chat/tool-query", map[string]string{"message": question, "cluster_name": opts.cluster}
	if opts.metric != "" {
		path, body = "/chat/send", map[string]string{"message": question, "metric": opts.metric}
	}
	data, err := json.Marshal(body)
	if err != nil {
		return askReply{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(opts.server, "/")+path, bytes.NewReader(data))
	if err != nil {
		return askReply{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return askReply{}, fmt.Errorf("ask: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return askReply{}, fmt.Errorf("ask: read response: %w", err)
	}
	var reply askReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return askReply{}, fmt.Errorf("ask: %s: %s", resp.Status, bytes.TrimSpace(raw))
	}
	if resp.StatusCode != http.StatusOK {
		if reply.Retryable {
			return askReply{}, fmt.Errorf("ask: %s (retryable): %s", resp.Status, reply.Error)
		}
		return askReply{}, fmt.Errorf("ask: %s: %s", resp.Status, reply.Error)
	}
	return reply, nil
}

func render(md string, opts askOptions) (string, error) {
	if opts.raw {
		return md + "\n", nil
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(opts.style),
		glamour.WithWordWrap(opts.width),
	)
	if err != nil {
		return "", fmt.Errorf("render: %w", err)
	}
	out, err := r.Render(md)
	if err != nil {
		return md + "\n", nil
	}
	return out, nil
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
