package notif

import (
	"context"
	"fmt"

	"ghrelay/internal/github"
)

// Enricher is the slice of the GitHub client the classifier consumes.
// Every lookup returns (nil, nil) for a confirmed absence; an error is a
// transport-level failure the classifier propagates as a hard fail.
type Enricher interface {
	GetUser(ctx context.Context, login string) (*github.User, error)
	GetIssue(ctx context.Context, repo github.Repository, number int) (*github.Issue, error)
	GetIssueComment(ctx context.Context, repo github.Repository, commentID int64) (*github.IssueComment, error)
	GetIssueEvent(ctx context.Context, repo github.Repository, eventID int64) (*github.IssueEvent, error)
	GetPRReview(ctx context.Context, repo github.Repository, prNumber int, reviewID int64) (*github.Review, error)
	GetPRReviewComment(ctx context.Context, repo github.Repository, commentID int64) (*github.ReviewComment, error)
}

// InvariantError reports an email whose content contradicts itself (e.g. a
// push email declaring N commits but listing a different number). It is
// not retryable: the same email will parse the same way every time.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string { return "invariant violation: " + e.Msg }

// outcome is a matcher's verdict on one email.
type outcome int

const (
	// missStructural: the email does not have this matcher's shape.
	missStructural outcome = iota
	// missSoft: the shape matched but a required lookup found nothing.
	missSoft
	// hit: the matcher produced a completed notification.
	hit
)

type matchFunc func(ctx context.Context, gh Enricher, em *ParsedEmail) (outcome, Notification, error)

type matcher struct {
	name  string
	match matchFunc
}

// matchers is evaluated strictly in order; the first hit wins. The order
// is significant: several matchers share structural preconditions and the
// more specific ones must run first.
var matchers = []matcher{
	{"pr_opened", matchPrOpened},
	{"pr_reviewed", matchPrReviewed},
	{"pr_review_commented", matchPrReviewCommented},
	{"direct_review_requested", matchDirectReviewRequested},
	{"team_review_requested", matchTeamReviewRequested},
	{"issue_closed", matchIssueClosed},
	{"commented", matchCommented},
	{"pushed", matchPushed},
	{"workflow_cancelled", matchWorkflowCancelled},
}

// Classify returns exactly one notification for the email. Structural and
// soft misses fall through to the next matcher and ultimately to Unknown;
// only lookup transport failures (and invariant violations) return an
// error, which aborts the caller's whole batch.
func Classify(ctx context.Context, gh Enricher, em ParsedEmail) (Notification, error) {
	for _, m := range matchers {
		out, n, err := m.match(ctx, gh, &em)
		if err != nil {
			return nil, fmt.Errorf("classify %s: %w", m.name, err)
		}
		if out == hit {
			return n, nil
		}
	}
	return Unknown{Sender: em.Sender, Body: em.Lines}, nil
}
