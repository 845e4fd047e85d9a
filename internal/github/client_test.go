package github

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"ghrelay/pkg/logx"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		Token:      "test-token",
		APIBase:    srv.URL,
		GraphQLURL: srv.URL + "/graphql",
		RatePerSec: 100,
	}, logx.Nop())
}

func TestGetUser(t *testing.T) {
	t.Parallel()
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/alice" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "token test-token" {
			t.Errorf("Authorization = %q", got)
		}
		if r.Header.Get("User-Agent") == "" {
			t.Error("missing User-Agent")
		}
		w.Write([]byte(`{"login":"alice","avatar_url":"https://avatars.test/alice"}`))
	}))

	u, err := c.GetUser(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GetUser error: %v", err)
	}
	if u == nil || u.Login != "alice" {
		t.Fatalf("GetUser = %+v", u)
	}
}

func TestGetUserNotFoundIsAbsence(t *testing.T) {
	t.Parallel()
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	u, err := c.GetUser(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("GetUser error: %v, want nil for 404", err)
	}
	if u != nil {
		t.Fatalf("GetUser = %+v, want nil", u)
	}
}

func TestGetUserServerErrorIsTransport(t *testing.T) {
	t.Parallel()
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	_, err := c.GetUser(context.Background(), "alice")
	if err == nil {
		t.Fatal("expected error for 500")
	}
	if errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("500 classified as malformed response: %v", err)
	}
}

func TestGetUserBadJSONIsMalformed(t *testing.T) {
	t.Parallel()
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))

	_, err := c.GetUser(context.Background(), "alice")
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("err = %v, want ErrMalformedResponse", err)
	}
}

func TestGetPRReviewPathAndState(t *testing.T) {
	t.Parallel()
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/octo/demo/pulls/42/reviews/7" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"user":{"login":"bob"},"body":"lgtm","state":"APPROVED"}`))
	}))

	rv, err := c.GetPRReview(context.Background(), Repository{Owner: "octo", Name: "demo"}, 42, 7)
	if err != nil {
		t.Fatalf("GetPRReview error: %v", err)
	}
	if rv.State != ReviewApproved {
		t.Fatalf("State = %s", rv.State)
	}
}

func TestGetPRReviewUnknownStateIsMalformed(t *testing.T) {
	t.Parallel()
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"user":{"login":"bob"},"state":"PENDING"}`))
	}))

	_, err := c.GetPRReview(context.Background(), Repository{Owner: "octo", Name: "demo"}, 42, 7)
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("err = %v, want ErrMalformedResponse", err)
	}
}

func TestGetIssueEventPath(t *testing.T) {
	t.Parallel()
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/octo/demo/issues/events/55" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"event":"merged","actor":{"login":"erin"}}`))
	}))

	ev, err := c.GetIssueEvent(context.Background(), Repository{Owner: "octo", Name: "demo"}, 55)
	if err != nil {
		t.Fatalf("GetIssueEvent error: %v", err)
	}
	if ev.Event != "merged" || ev.Actor.Login != "erin" {
		t.Fatalf("GetIssueEvent = %+v", ev)
	}
}

// unsubServer fakes the two GraphQL operations behind UnsubscribePR and
// tracks how the review-request list changes after a mutation.
type unsubServer struct {
	mu          sync.Mutex
	reviewers   []map[string]string // __typename/login pairs
	prExists    bool
	mutations   int
	resultState string
}

func (s *unsubServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var req struct {
		Query     string         `json:"query"`
		Variables map[string]any `json:"variables"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, isMutation := req.Variables["input"]; isMutation {
		s.mutations++
		// Unsubscribing clears the direct review request.
		s.reviewers = nil
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"updateSubscription": map[string]any{
					"subscribable": map[string]any{
						"viewerSubscription": s.resultState,
					},
				},
			},
		})
		return
	}

	if !s.prExists {
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"repository": map[string]any{"pullRequest": nil}},
		})
		return
	}
	nodes := make([]map[string]any, 0, len(s.reviewers))
	for _, rv := range s.reviewers {
		nodes = append(nodes, map[string]any{"requestedReviewer": rv})
	}
	json.NewEncoder(w).Encode(map[string]any{
		"data": map[string]any{
			"repository": map[string]any{
				"pullRequest": map[string]any{
					"id": "PR_id123",
					"reviewRequests": map[string]any{"nodes": nodes},
				},
			},
		},
	})
}

func TestUnsubscribePR(t *testing.T) {
	t.Parallel()
	srv := &unsubServer{
		prExists:    true,
		resultState: "UNSUBSCRIBED",
		reviewers: []map[string]string{
			{"__typename": "Team", "login": ""},
			{"__typename": "User", "login": "me"},
		},
	}
	c := testClient(t, srv)
	repo := Repository{Owner: "octo", Name: "demo"}

	done, err := c.UnsubscribePR(context.Background(), repo, 42, "me")
	if err != nil {
		t.Fatalf("UnsubscribePR error: %v", err)
	}
	if !done {
		t.Fatal("UnsubscribePR = false, want true on first call")
	}
	if srv.mutations != 1 {
		t.Fatalf("mutations = %d, want 1", srv.mutations)
	}

	// Second call finds no remaining direct request and is a no-op.
	done, err = c.UnsubscribePR(context.Background(), repo, 42, "me")
	if err != nil {
		t.Fatalf("UnsubscribePR error: %v", err)
	}
	if done {
		t.Fatal("UnsubscribePR = true on repeat call, want false")
	}
	if srv.mutations != 1 {
		t.Fatalf("mutations = %d after repeat call, want still 1", srv.mutations)
	}
}

func TestUnsubscribePRGonePR(t *testing.T) {
	t.Parallel()
	srv := &unsubServer{prExists: false}
	c := testClient(t, srv)

	done, err := c.UnsubscribePR(context.Background(), Repository{Owner: "octo", Name: "demo"}, 42, "me")
	if err != nil {
		t.Fatalf("UnsubscribePR error: %v", err)
	}
	if done {
		t.Fatal("UnsubscribePR = true for missing PR, want false")
	}
	if srv.mutations != 0 {
		t.Fatalf("mutations = %d, want 0", srv.mutations)
	}
}

func TestUnsubscribePRTeamOnlyRequest(t *testing.T) {
	t.Parallel()
	srv := &unsubServer{
		prExists:    true,
		resultState: "UNSUBSCRIBED",
		reviewers:   []map[string]string{{"__typename": "Team", "login": ""}},
	}
	c := testClient(t, srv)

	done, err := c.UnsubscribePR(context.Background(), Repository{Owner: "octo", Name: "demo"}, 42, "me")
	if err != nil {
		t.Fatalf("UnsubscribePR error: %v", err)
	}
	if done {
		t.Fatal("UnsubscribePR = true without a direct request, want false")
	}
	if srv.mutations != 0 {
		t.Fatalf("mutations = %d, want 0", srv.mutations)
	}
}

func TestUnsubscribePRMutationNotApplied(t *testing.T) {
	t.Parallel()
	srv := &unsubServer{
		prExists:    true,
		resultState: "SUBSCRIBED",
		reviewers:   []map[string]string{{"__typename": "User", "login": "me"}},
	}
	c := testClient(t, srv)

	done, err := c.UnsubscribePR(context.Background(), Repository{Owner: "octo", Name: "demo"}, 42, "me")
	if err != nil {
		t.Fatalf("UnsubscribePR error: %v", err)
	}
	if done {
		t.Fatal("UnsubscribePR = true although the state did not change, want false")
	}
}

func TestGraphQLErrorsSurface(t *testing.T) {
	t.Parallel()
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errors":[{"message":"rate limited"}]}`))
	}))

	_, err := c.UnsubscribePR(context.Background(), Repository{Owner: "octo", Name: "demo"}, 42, "me")
	if err == nil {
		t.Fatal("expected error from GraphQL errors array")
	}
}
