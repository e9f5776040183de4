// Package contextfold implements the Map-Reduce context-folding algorithm
// that keeps the Analysis Stage Worker's prompt to the summarizer under its
// hard input-token ceiling, regardless of how many search results a
// request accumulated (spec §4.6).
package contextfold

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"research-pipeline/internal/summarizer"
)

// Item is one search result formatted for inclusion in the analysis
// context.
type Item struct {
	Title   string
	URL     string
	Content string
}

// Folder tokenizes and, when necessary, map-reduces a list of Items down
// to a context string guaranteed to fit the configured ceiling.
type Folder struct {
	tokenizer      *tiktoken.Tiktoken
	ctxMax         int
	mapChunkTokens int
	maxContentChars int
	summarizer     summarizer.Summarizer
}

// New builds a Folder. maxModelLen is the summarizer's hard input-token
// ceiling; reservedTokens accounts for system/user prompt scaffolding and
// the output buffer (spec recommends ~1800); mapChunkTokens bounds each
// Map-phase chunk (spec recommends 3000); maxContentChars hard-caps a
// single result's content before it ever reaches tokenization.
func New(maxModelLen, reservedTokens, mapChunkTokens, maxContentChars int, s summarizer.Summarizer) (*Folder, error) {
	tkm, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("contextfold: load tokenizer: %w", err)
	}
	return &Folder{
		tokenizer:       tkm,
		ctxMax:          maxModelLen - reservedTokens,
		mapChunkTokens:  mapChunkTokens,
		maxContentChars: maxContentChars,
		summarizer:      s,
	}, nil
}

func (f *Folder) countTokens(s string) int {
	return len(f.tokenizer.Encode(s, nil, nil))
}

// Result is the outcome of a Fold call.
type Result struct {
	// Context is the final string to embed in the outer summarization
	// prompt.
	Context string
	// Folded is true when the Map-Reduce path was taken, false when the
	// items fit directly within the ceiling.
	Folded bool
}

// Fold returns the final context string to embed in the outer
// summarization prompt. When the concatenated items fit within the
// ceiling it is returned verbatim (the direct path); otherwise the items
// are partitioned into chunks, each summarized independently in a single
// dispatched batch (the Map phase), and the chunk summaries are
// concatenated (the Reduce phase). Fold never returns a context that
// itself exceeds the ceiling — if the reduced context still overflows, it
// fails rather than silently truncating further (spec §4.6 guarantee).
func (f *Folder) Fold(ctx context.Context, topic string, items []Item) (Result, error) {
	contentItems := make([]string, len(items))
	for i, it := range items {
		content := it.Content
		if len(content) > f.maxContentChars {
			content = content[:f.maxContentChars]
		}
		contentItems[i] = fmt.Sprintf("[Result %d]\nTitle: %s\nURL: %s\nContent: %s\n", i+1, it.Title, it.URL, content)
	}

	full := strings.Join(contentItems, "\n---\n")
	total := f.countTokens(full)

	if total <= f.ctxMax {
		return Result{Context: full, Folded: false}, nil
	}

	chunks := f.partition(contentItems)

	summaries := make([]string, len(chunks))
	errs := make([]error, len(chunks))
	var wg sync.WaitGroup
	for i, chunk := range chunks {
		wg.Add(1)
		go func(i int, chunk string) {
			defer wg.Done()
			prompt := mapPrompt(topic, chunk, i+1, len(chunks))
			summary, err := f.summarizer.Summarize(ctx, prompt)
			if err != nil {
				errs[i] = err
				return
			}
			summaries[i] = strings.TrimSpace(summary)
		}(i, chunk)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return Result{}, fmt.Errorf("contextfold: map chunk %d/%d: %w", i+1, len(chunks), err)
		}
	}

	parts := make([]string, len(summaries))
	for i, s := range summaries {
		parts[i] = fmt.Sprintf("Summary Part %d:\n%s", i+1, s)
	}
	reduced := strings.Join(parts, "\n\n---\n\n")

	if reducedTokens := f.countTokens(reduced); reducedTokens > f.ctxMax {
		return Result{}, fmt.Errorf("contextfold: reduced context still exceeds ceiling (%d > %d tokens)", reducedTokens, f.ctxMax)
	}

	return Result{Context: reduced, Folded: true}, nil
}

// partition splits contentItems into order-preserving chunks, each at
// most mapChunkTokens. An item alone exceeding mapChunkTokens is
// character-truncated proportionally, with a visible marker, rather than
// ever being dropped.
func (f *Folder) partition(contentItems []string) []string {
	var chunks []string
	var current []string
	currentTokens := 0

	for _, item := range contentItems {
		itemTokens := f.countTokens(item)

		if itemTokens > f.mapChunkTokens {
			ratio := float64(f.mapChunkTokens) / float64(itemTokens)
			cutLen := int(float64(len(item)) * ratio)
			if cutLen > len(item) {
				cutLen = len(item)
			}
			item = item[:cutLen] + "...(truncated)"
			itemTokens = f.mapChunkTokens
		}

		if len(current) > 0 && currentTokens+itemTokens > f.mapChunkTokens {
			chunks = append(chunks, strings.Join(current, "\n---\n"))
			current = []string{item}
			currentTokens = itemTokens
			continue
		}
		current = append(current, item)
		currentTokens += itemTokens
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, "\n---\n"))
	}
	return chunks
}

func mapPrompt(topic, chunk string, position, total int) string {
	return fmt.Sprintf(
		"Topic: %s\n\nChunk %d/%d:\n%s\n\nSummarize the key facts in this chunk relevant to the topic.",
		topic, position, total, chunk,
	)
}
