package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphqlError  `json:"errors"`
}

type graphqlError struct {
	Message string `json:"message"`
}

func (c *Client) graphql(ctx context.Context, query string, vars map[string]any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(graphqlRequest{Query: query, Variables: vars})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("github: graphql: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		c.logErrorResponse(c.graphqlURL, res)
		return fmt.Errorf("github: graphql: unexpected status %d", res.StatusCode)
	}

	var gr graphqlResponse
	if err := json.NewDecoder(res.Body).Decode(&gr); err != nil {
		return fmt.Errorf("%w: graphql: %v", ErrMalformedResponse, err)
	}
	if len(gr.Errors) > 0 {
		msgs := make([]string, 0, len(gr.Errors))
		for _, e := range gr.Errors {
			msgs = append(msgs, e.Message)
		}
		return fmt.Errorf("github: graphql response errors: %s", strings.Join(msgs, ","))
	}
	if gr.Data == nil {
		return fmt.Errorf("%w: graphql response has neither data nor errors", ErrMalformedResponse)
	}
	if err := json.Unmarshal(gr.Data, out); err != nil {
		return fmt.Errorf("%w: graphql: %v", ErrMalformedResponse, err)
	}
	return nil
}

const reviewRequestsQuery = `
query($owner: String!, $repo: String!, $pr_number: Int!) {
  repository(owner: $owner, name: $repo) {
    pullRequest(number: $pr_number) {
      id
      reviewRequests(first: 20) {
        nodes {
          requestedReviewer {
            __typename
            ... on User {
              login
            }
          }
        }
      }
    }
  }
}`

type reviewRequestsPayload struct {
	Repository *struct {
		PullRequest *struct {
			ID             string `json:"id"`
			ReviewRequests struct {
				Nodes []struct {
					RequestedReviewer *struct {
						Typename string `json:"__typename"`
						Login    string `json:"login"`
					} `json:"requestedReviewer"`
				} `json:"nodes"`
			} `json:"reviewRequests"`
		} `json:"pullRequest"`
	} `json:"repository"`
}

const updateSubscriptionMutation = `
mutation($input: UpdateSubscriptionInput!) {
  updateSubscription(input: $input) {
    subscribable {
      viewerSubscription
    }
  }
}`

type updateSubscriptionPayload struct {
	UpdateSubscription struct {
		Subscribable *struct {
			ViewerSubscription string `json:"viewerSubscription"`
		} `json:"subscribable"`
	} `json:"updateSubscription"`
}

// UnsubscribePR unsubscribes the token's user from a pull request's
// notifications. Two round-trips:
//
//  1. query the PR's review-request list and subscribable id; returns
//     false immediately when the PR is gone or login holds no direct
//     (non-team) review request on it
//  2. mutate the subscription state; returns true only when the mutation
//     reports the resulting state as UNSUBSCRIBED
//
// Idempotent: re-invoking after success runs the query again, finds no
// remaining direct request, and returns false without side effect.
func (c *Client) UnsubscribePR(ctx context.Context, repo Repository, prNumber int, login string) (bool, error) {
	var q reviewRequestsPayload
	err := c.graphql(ctx, reviewRequestsQuery, map[string]any{
		"owner":     repo.Owner,
		"repo":      repo.Name,
		"pr_number": prNumber,
	}, &q)
	if err != nil {
		return false, err
	}

	if q.Repository == nil || q.Repository.PullRequest == nil {
		return false, nil
	}
	pr := q.Repository.PullRequest

	direct := false
	for _, n := range pr.ReviewRequests.Nodes {
		if n.RequestedReviewer == nil {
			continue
		}
		if n.RequestedReviewer.Typename == "User" && n.RequestedReviewer.Login == login {
			direct = true
			break
		}
	}
	if !direct {
		return false, nil
	}

	var m updateSubscriptionPayload
	err = c.graphql(ctx, updateSubscriptionMutation, map[string]any{
		"input": map[string]any{
			"state":          "UNSUBSCRIBED",
			"subscribableId": pr.ID,
		},
	}, &m)
	if err != nil {
		return false, err
	}
	sub := m.UpdateSubscription.Subscribable
	return sub != nil && sub.ViewerSubscription == "UNSUBSCRIBED", nil
}
