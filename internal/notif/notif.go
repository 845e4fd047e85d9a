// Package notif turns forwarded GitHub notification emails into typed,
// enriched notifications.
//
// Classification runs a fixed, ordered chain of matchers over a parsed
// email. Each matcher either misses structurally (wrong shape of email),
// misses softly (shape matched but the required GitHub lookup found
// nothing), or hits with a completed notification. The first hit wins;
// when every matcher misses the email degrades to Unknown, never to zero
// notifications.
package notif

import "ghrelay/internal/github"

// Notification is one typed GitHub activity, ready for formatting.
// The concrete type is one of the variant structs below.
type Notification interface {
	Kind() string
}

// Unknown is the passthrough for emails no matcher recognizes.
type Unknown struct {
	Sender string   `json:"sender"`
	Body   []string `json:"body"`
}

type PrOpened struct {
	Opener github.User     `json:"opener"`
	PR     github.IssueRef `json:"pr"`
}

type PrReviewed struct {
	URL       string             `json:"url"`
	PR        github.IssueRef    `json:"pr"`
	State     github.ReviewState `json:"state"`
	Commenter github.User        `json:"commenter"`
	Comment   string             `json:"comment"`
}

type PrReviewCommented struct {
	URL       string          `json:"url"`
	PR        github.IssueRef `json:"pr"`
	Commenter github.User     `json:"commenter"`
	Comment   string          `json:"comment"`
}

type DirectReviewRequested struct {
	Reviewee github.User     `json:"reviewee"`
	PR       github.IssueRef `json:"pr"`
}

type TeamReviewRequested struct {
	Reviewee github.User     `json:"reviewee"`
	PR       github.IssueRef `json:"pr"`
	Team     string          `json:"team"`
}

type IssueClosed struct {
	Closer  github.User     `json:"closer"`
	Issue   github.IssueRef `json:"issue"`
	IsMerge bool            `json:"is_merge"`
}

type Commented struct {
	URL       string          `json:"url"`
	Issue     github.IssueRef `json:"issue"`
	Commenter github.User     `json:"commenter"`
	Comment   string          `json:"comment"`
}

type Pushed struct {
	PR        github.IssueRef     `json:"pr"`
	DiffURL   string              `json:"diff_url"`
	Committer github.User         `json:"committer"`
	Commits   []github.CommitInfo `json:"commits"`
}

type WorkflowCancelled struct {
	Sender       string `json:"sender"`
	RepoFullName string `json:"repo_full_name"`
	Workflow     string `json:"workflow"`
	ResultURL    string `json:"result_url"`
}

func (Unknown) Kind() string               { return "unknown" }
func (PrOpened) Kind() string              { return "pr_opened" }
func (PrReviewed) Kind() string            { return "pr_reviewed" }
func (PrReviewCommented) Kind() string     { return "pr_review_commented" }
func (DirectReviewRequested) Kind() string { return "direct_review_requested" }
func (TeamReviewRequested) Kind() string   { return "team_review_requested" }
func (IssueClosed) Kind() string           { return "issue_closed" }
func (Commented) Kind() string             { return "commented" }
func (Pushed) Kind() string                { return "pushed" }
func (WorkflowCancelled) Kind() string     { return "workflow_cancelled" }
