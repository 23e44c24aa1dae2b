// Package search is the client for the solution center: it ranks candidate
// intents for a conversation and serves the action plan of a resolved intent.
package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/errgroup"
)

// ErrNoPlan is returned by GetSolution when the intent has no plan.
var ErrNoPlan = errors.New("no solution plan")

const defaultBackoff = 500 * time.Millisecond

// Client talks to the solution center over HTTP.
type Client struct {
	http       *resty.Client
	maxRetries int
	backoff    time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithBackoff overrides the initial retry delay.
func WithBackoff(d time.Duration) Option {
	return func(c *Client) { c.backoff = d }
}

// New creates a Client. maxRetries is the total number of attempts per call.
func New(baseURL, apiKey string, maxRetries int, opts ...Option) *Client {
	h := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetTimeout(15 * time.Second).
		SetRetryCount(0)
	if apiKey != "" {
		h.SetAuthToken(apiKey)
	}

	c := &Client{http: h, maxRetries: maxRetries, backoff: defaultBackoff}
	for _, o := range opts {
		o(c)
	}
	return c
}

type searchRequest struct {
	TextNormalizedVersions []string `json:"textNormalizedVersions"`
	ProductName            string   `json:"productName,omitempty"`
}

type searchResult struct {
	Type  string  `json:"type"`
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Desc  string  `json:"description,omitempty"`
	Score float64 `json:"score"`
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

// FindCandidates searches each distinct text variant of q concurrently and
// merges the results by id, keeping the best score, highest first.
func (c *Client) FindCandidates(ctx context.Context, q Query) ([]Candidate, error) {
	variants := distinct(q.Conversation, q.Latest)
	if len(variants) == 0 {
		return nil, nil
	}

	var (
		mu   sync.Mutex
		best = make(map[string]Candidate)
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, text := range variants {
		g.Go(func() error {
			results, err := c.search(gctx, text, q.ProductContext)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for _, r := range results {
				if cur, ok := best[r.ID]; !ok || r.Score > cur.Score {
					best[r.ID] = r
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Candidate, 0, len(best))
	for _, cand := range best {
		out = append(out, cand)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (c *Client) search(ctx context.Context, text, product string) ([]Candidate, error) {
	var out []Candidate
	err := withRetry(ctx, c.maxRetries, c.backoff, "find_candidates", func() error {
		var body searchResponse
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(searchRequest{TextNormalizedVersions: []string{text}, ProductName: product}).
			SetResult(&body).
			Post("/api/search/articlesandproblems")
		if err != nil {
			return fmt.Errorf("search request: %w", err)
		}
		if err := statusError(resp); err != nil {
			return err
		}

		out = make([]Candidate, 0, len(body.Results))
		for _, r := range body.Results {
			if r.ID == "" {
				continue
			}
			out = append(out, Candidate{ID: r.ID, Label: r.Name, Summary: r.Desc, Score: r.Score})
		}
		return nil
	})
	return out, err
}

// GetSolution fetches the action plan for an intent, sorted by sequence.
// It returns ErrNoPlan when the solution center has none.
func (c *Client) GetSolution(ctx context.Context, intentID string) (*Plan, error) {
	var plan *Plan
	err := withRetry(ctx, c.maxRetries, c.backoff, "get_solution", func() error {
		var body Plan
		resp, err := c.http.R().
			SetContext(ctx).
			SetResult(&body).
			Get("/api/solutions/" + url.PathEscape(intentID))
		if err != nil {
			return fmt.Errorf("solution request: %w", err)
		}
		if resp.StatusCode() == http.StatusNotFound {
			return fmt.Errorf("intent %s: %w", intentID, errors.Join(ErrNoPlan, errPermanent))
		}
		if err := statusError(resp); err != nil {
			return err
		}
		plan = &body
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(plan.Actions) == 0 {
		return nil, fmt.Errorf("intent %s: %w", intentID, ErrNoPlan)
	}

	sort.SliceStable(plan.Actions, func(i, j int) bool {
		return plan.Actions[i].Sequence < plan.Actions[j].Sequence
	})
	return plan, nil
}

func statusError(resp *resty.Response) error {
	code := resp.StatusCode()
	switch {
	case code >= 500 || code == http.StatusTooManyRequests:
		return fmt.Errorf("solution center status %d: %s", code, resp.String())
	case code >= 400:
		return fmt.Errorf("solution center status %d: %w", code, errPermanent)
	}
	return nil
}

func distinct(texts ...string) []string {
	seen := make(map[string]bool, len(texts))
	var out []string
	for _, t := range texts {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
