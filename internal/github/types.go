package github

import (
	"encoding/json"
	"fmt"
)

type User struct {
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url"`
}

type Repository struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

func (r Repository) FullName() string { return r.Owner + "/" + r.Name }

// IssueRef identifies an issue or pull request as named by a notification
// email subject. GitHub's REST API treats PRs as issues, so one ref type
// covers both.
type IssueRef struct {
	Repo   Repository `json:"repo"`
	Number int        `json:"number"`
	Title  string     `json:"title"`
}

type Issue struct {
	HTMLURL string `json:"html_url"`
	State   string `json:"state"`
	Number  int    `json:"number"`
	Title   string `json:"title"`
	User    User   `json:"user"`
}

type IssueComment struct {
	Body string `json:"body"`
	User User   `json:"user"`
}

type IssueEvent struct {
	Event string `json:"event"`
	Actor User   `json:"actor"`
}

type Review struct {
	User  User        `json:"user"`
	Body  string      `json:"body"`
	State ReviewState `json:"state"`
}

type ReviewComment struct {
	Body string `json:"body"`
	User User   `json:"user"`
}

type CommitInfo struct {
	Hash    string `json:"hash"`
	Message string `json:"message"`
}

type ReviewState string

const (
	ReviewCommented        ReviewState = "COMMENTED"
	ReviewApproved         ReviewState = "APPROVED"
	ReviewChangesRequested ReviewState = "CHANGES_REQUESTED"
	ReviewDismissed        ReviewState = "DISMISSED"
)

// UnmarshalJSON rejects states this relay does not know how to render.
// An unknown state is a malformed-response condition, not a new variant to
// guess at.
func (s *ReviewState) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch ReviewState(raw) {
	case ReviewCommented, ReviewApproved, ReviewChangesRequested, ReviewDismissed:
		*s = ReviewState(raw)
		return nil
	}
	return fmt.Errorf("%w: unknown review state %q", ErrMalformedResponse, raw)
}
