// Package summarizer is the LLM external collaborator: given a prompt,
// return generated text. Concurrent callers (the Map phase of context
// folding, spec §4.6) are grouped into batches by a micro-batcher, so all
// chunk prompts are handed to the summarizer together without the worker
// owning any pool of its own. Each batch still issues one HTTP request per
// prompt, concurrently; prompts are not merged into a single request.
package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/joeycumines/go-microbatch"
)

// Summarizer turns a single prompt into generated text.
type Summarizer interface {
	Summarize(ctx context.Context, prompt string) (string, error)
}

// Params mirrors the sampling configuration surfaced by
// original_source/ai_worker's SamplingParams.
type Params struct {
	Model       string
	Temperature float64
	TopP        float64
	MaxTokens   int
}

// job is the unit submitted to the batcher. Its fields are mutated in
// place by the BatchProcessor, per microbatch's by-reference contract.
type job struct {
	prompt string
	result string
	err    error
}

// Client calls an OpenAI-compatible completions endpoint, batching
// concurrent Summarize calls.
type Client struct {
	endpoint string
	params   Params
	http     *http.Client
	batcher  *microbatch.Batcher[*job]
}

// New builds a batching summarizer client against an OpenAI-style
// completion endpoint.
func New(endpoint string, params Params) *Client {
	c := &Client{
		endpoint: endpoint,
		params:   params,
		http:     &http.Client{Timeout: 120 * time.Second},
	}
	c.batcher = microbatch.NewBatcher(&microbatch.BatcherConfig{
		MaxSize:        16,
		FlushInterval:  25 * time.Millisecond,
		MaxConcurrency: 2,
	}, c.processBatch)
	return c
}

// Summarize submits prompt to the batcher and waits for its result. A Map
// phase firing K goroutines concurrently against the same Client is grouped
// into as few batches as MaxSize/FlushInterval allow; every prompt in a
// batch gets its own HTTP request.
func (c *Client) Summarize(ctx context.Context, prompt string) (string, error) {
	j := &job{prompt: prompt}
	res, err := c.batcher.Submit(ctx, j)
	if err != nil {
		return "", fmt.Errorf("summarizer: submit: %w", err)
	}
	if err := res.Wait(ctx); err != nil {
		return "", fmt.Errorf("summarizer: %w", err)
	}
	if j.err != nil {
		return "", fmt.Errorf("summarizer: %w", j.err)
	}
	return j.result, nil
}

// Close releases the batcher's background goroutine.
func (c *Client) Close() error {
	return c.batcher.Close()
}

type completionRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	MaxTokens   int     `json:"max_tokens"`
}

type completionResponse struct {
	Choices []struct {
		Text string `json:"text"`
	} `json:"choices"`
}

// processBatch is the BatchProcessor: it fires one HTTP round trip per
// job, concurrently within the batch, since the underlying endpoint has no
// native multi-prompt batch API of its own to delegate to.
func (c *Client) processBatch(ctx context.Context, jobs []*job) error {
	type outcome struct {
		idx int
		err error
	}
	results := make(chan outcome, len(jobs))

	for i, j := range jobs {
		go func(i int, j *job) {
			text, err := c.complete(ctx, j.prompt)
			j.result = text
			j.err = err
			results <- outcome{idx: i, err: err}
		}(i, j)
	}

	var firstErr error
	for range jobs {
		if o := <-results; o.err != nil && firstErr == nil {
			firstErr = o.err
		}
	}
	// Per-job errors surface through job.err via JobResult.Wait; the batch
	// itself only fails outright on a systemic problem, not a single
	// prompt's failure, so individual failures are not propagated here.
	return nil
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(completionRequest{
		Model:       c.params.Model,
		Prompt:      prompt,
		Temperature: c.params.Temperature,
		TopP:        c.params.TopP,
		MaxTokens:   c.params.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}

	var parsed completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty choices in response")
	}
	return parsed.Choices[0].Text, nil
}
