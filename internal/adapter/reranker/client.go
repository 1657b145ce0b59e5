// Package reranker reorders search candidates with a hosted cross-encoder.
package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	ProviderNone   = ""
	ProviderJina   = "jina"
	ProviderCohere = "cohere"
)

type provider struct {
	url   string
	model string
}

var providers = map[string]provider{
	ProviderJina:   {url: "https://api.jina.ai/v1/rerank", model: "jina-reranker-v1-base-en"},
	ProviderCohere: {url: "https://api.cohere.ai/v1/rerank", model: "rerank-english-v3.0"},
}

type Client struct {
	apiKey   string
	provider string
	client   *http.Client
	baseURL  string
}

// NewClient returns a client for jina or cohere. Any other provider yields a
// client that keeps the incoming order.
func NewClient(providerName, apiKey string) *Client {
	return &Client{
		provider: strings.ToLower(strings.TrimSpace(providerName)),
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) SetBaseURL(url string) {
	c.baseURL = url
}

// Enabled reports whether Rerank calls a remote service.
func (c *Client) Enabled() bool {
	_, ok := providers[c.provider]
	return ok
}

// Rerank returns indices into docs, most relevant first.
func (c *Client) Rerank(ctx context.Context, query string, docs []string) ([]int, error) {
	p, ok := providers[c.provider]
	if !ok || len(docs) == 0 {
		indices := make([]int, len(docs))
		for i := range indices {
			indices[i] = i
		}
		return indices, nil
	}

	url := p.url
	if c.baseURL != "" {
		url = c.baseURL
	}

	reqBody := map[string]interface{}{
		"model":     p.model,
		"query":     query,
		"documents": docs,
	}
	if c.provider == ProviderCohere {
		reqBody["top_n"] = len(docs)
		reqBody["return_documents"] = false
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s rerank request: %w", c.provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s api error: %d", c.provider, resp.StatusCode)
	}

	var result struct {
		Results []struct {
			Index int     `json:"index"`
			Score float64 `json:"relevance_score"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", c.provider, err)
	}

	seen := make(map[int]bool, len(docs))
	indices := make([]int, 0, len(docs))
	for _, r := range result.Results {
		if r.Index < 0 || r.Index >= len(docs) || seen[r.Index] {
			continue
		}
		seen[r.Index] = true
		indices = append(indices, r.Index)
	}
	return indices, nil
}
