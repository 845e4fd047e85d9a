// Package github is a thin client for the handful of GitHub REST lookups
// and the two GraphQL operations the relay performs.
//
// Error mapping, relied upon by the classifier:
//   - HTTP 404 is a confirmed absence and returns (nil, nil), never an error
//   - an unexpected payload shape wraps ErrMalformedResponse
//   - everything else (transport, non-2xx) is a plain error the caller
//     treats as retryable
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"ghrelay/pkg/logx"
)

// ErrMalformedResponse marks an API payload that did not have the expected
// shape. It is retried like a transport error since the bad response may be
// transient.
var ErrMalformedResponse = errors.New("github: malformed response")

const (
	defaultAPIBase    = "https://api.github.com"
	defaultGraphQLURL = "https://api.github.com/graphql"
)

type Config struct {
	Token string
	// APIBase and GraphQLURL override the endpoints, used by tests.
	APIBase    string
	GraphQLURL string
	RatePerSec int
}

type Client struct {
	httpc      *http.Client
	limiter    *rate.Limiter
	token      string
	apiBase    string
	graphqlURL string
	log        logx.Logger
}

func NewClient(cfg Config, log logx.Logger) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	base := strings.TrimSuffix(cfg.APIBase, "/")
	if base == "" {
		base = defaultAPIBase
	}
	gql := cfg.GraphQLURL
	if gql == "" {
		gql = defaultGraphQLURL
	}
	rps := cfg.RatePerSec
	if rps < 1 {
		rps = 5
	}
	return &Client{
		httpc:      &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(rps), rps),
		token:      cfg.Token,
		apiBase:    base,
		graphqlURL: gql,
		log:        log,
	}
}

func (c *Client) GetUser(ctx context.Context, login string) (*User, error) {
	var u User
	found, err := c.get(ctx, fmt.Sprintf("/users/%s", login), &u)
	if err != nil || !found {
		return nil, err
	}
	return &u, nil
}

func (c *Client) GetIssue(ctx context.Context, repo Repository, number int) (*Issue, error) {
	var is Issue
	found, err := c.get(ctx, fmt.Sprintf("/repos/%s/%s/issues/%d", repo.Owner, repo.Name, number), &is)
	if err != nil || !found {
		return nil, err
	}
	return &is, nil
}

func (c *Client) GetIssueComment(ctx context.Context, repo Repository, commentID int64) (*IssueComment, error) {
	var cm IssueComment
	found, err := c.get(ctx, fmt.Sprintf("/repos/%s/%s/issues/comments/%d", repo.Owner, repo.Name, commentID), &cm)
	if err != nil || !found {
		return nil, err
	}
	return &cm, nil
}

func (c *Client) GetIssueEvent(ctx context.Context, repo Repository, eventID int64) (*IssueEvent, error) {
	var ev IssueEvent
	found, err := c.get(ctx, fmt.Sprintf("/repos/%s/%s/issues/events/%d", repo.Owner, repo.Name, eventID), &ev)
	if err != nil || !found {
		return nil, err
	}
	return &ev, nil
}

func (c *Client) GetPRReview(ctx context.Context, repo Repository, prNumber int, reviewID int64) (*Review, error) {
	var rv Review
	found, err := c.get(ctx, fmt.Sprintf("/repos/%s/%s/pulls/%d/reviews/%d", repo.Owner, repo.Name, prNumber, reviewID), &rv)
	if err != nil || !found {
		return nil, err
	}
	return &rv, nil
}

func (c *Client) GetPRReviewComment(ctx context.Context, repo Repository, commentID int64) (*ReviewComment, error) {
	var cm ReviewComment
	found, err := c.get(ctx, fmt.Sprintf("/repos/%s/%s/pulls/comments/%d", repo.Owner, repo.Name, commentID), &cm)
	if err != nil || !found {
		return nil, err
	}
	return &cm, nil
}

// get performs an authenticated GET. found is false on 404.
func (c *Client) get(ctx context.Context, path string, out any) (found bool, err error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return false, err
	}

	url := c.apiBase + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	c.setHeaders(req)

	res, err := c.httpc.Do(req)
	if err != nil {
		return false, fmt.Errorf("github: GET %s: %w", path, err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusNotFound:
		return false, nil
	case res.StatusCode < 200 || res.StatusCode > 299:
		c.logErrorResponse(url, res)
		return false, fmt.Errorf("github: GET %s: unexpected status %d", path, res.StatusCode)
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return false, fmt.Errorf("%w: GET %s: %v", ErrMalformedResponse, path, err)
	}
	return true, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "token "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	// GitHub rejects requests without a User-Agent.
	req.Header.Set("User-Agent", "ghrelay")
}

// logErrorResponse records the response body of a failed request before it
// is surfaced as a plain transport error.
func (c *Client) logErrorResponse(url string, res *http.Response) {
	snippet, err := io.ReadAll(io.LimitReader(res.Body, 1024))
	if err != nil {
		snippet = []byte("[unavailable]")
	}
	c.log.Warn("github request failed",
		logx.String("url", url),
		logx.Int("status", res.StatusCode),
		logx.String("body", string(snippet)))
}
