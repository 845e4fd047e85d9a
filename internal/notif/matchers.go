package notif

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"ghrelay/internal/github"
)

var (
	reviewURLRe        = regexp.MustCompile(`#pullrequestreview-(\d+)$`)
	reviewCommentURLRe = regexp.MustCompile(`#discussion_r(\d+)$`)
	issueCommentURLRe  = regexp.MustCompile(`#issuecomment-(\d+)$`)
	issueEventURLRe    = regexp.MustCompile(`#event-(\d+)$`)

	directReviewRe = regexp.MustCompile(`^@(\S+) requested your review on:`)
	teamReviewRe   = regexp.MustCompile(`^@(\S+) requested review from @(\S+) on:`)
	pushRe         = regexp.MustCompile(`^@(\S+) pushed (\d+) commits?\.`)
	commitHashRe   = regexp.MustCompile(`^[a-z0-9]{40}$`)
)

const prOpenedMarker = "You can view, comment on, or merge this pull request online at:"

func firstLine(em *ParsedEmail) string {
	if len(em.Lines) == 0 {
		return ""
	}
	return em.Lines[0]
}

func matchPrOpened(ctx context.Context, gh Enricher, em *ParsedEmail) (outcome, Notification, error) {
	if em.Issue == nil || em.SourceURL == "" {
		return missStructural, nil, nil
	}
	found := false
	for _, l := range em.Lines {
		if strings.HasPrefix(l, prOpenedMarker) {
			found = true
			break
		}
	}
	if !found {
		return missStructural, nil, nil
	}

	issue, err := gh.GetIssue(ctx, em.Issue.Repo, em.Issue.Number)
	if err != nil {
		return missStructural, nil, err
	}
	if issue == nil {
		return missSoft, nil, nil
	}
	return hit, PrOpened{Opener: issue.User, PR: *em.Issue}, nil
}

func matchPrReviewed(ctx context.Context, gh Enricher, em *ParsedEmail) (outcome, Notification, error) {
	if em.Issue == nil || em.SourceURL == "" {
		return missStructural, nil, nil
	}
	caps := reviewURLRe.FindStringSubmatch(em.SourceURL)
	if caps == nil {
		return missStructural, nil, nil
	}
	reviewID, _ := strconv.ParseInt(caps[1], 10, 64)

	review, err := gh.GetPRReview(ctx, em.Issue.Repo, em.Issue.Number, reviewID)
	if err != nil {
		return missStructural, nil, err
	}
	if review == nil {
		return missSoft, nil, nil
	}

	comment := extractReviewComment(em.Lines, review)
	return hit, PrReviewed{
		URL:       em.SourceURL,
		PR:        *em.Issue,
		State:     review.State,
		Commenter: review.User,
		Comment:   comment,
	}, nil
}

// extractReviewComment pulls the review's comment text out of the email
// body: the lines between the "@login <verb> this pull request." header
// and the trailing "-- " signature marker, trimming one leading and one
// trailing blank line. Falls back to the API review body when the header
// line is absent.
func extractReviewComment(lines []string, review *github.Review) string {
	header := fmt.Sprintf("@%s %s this pull request.", review.User.Login, reviewVerb(review.State))

	start := -1
	for i, l := range lines {
		if l == header {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return review.Body
	}

	end := len(lines)
	for i := start; i < len(lines); i++ {
		if lines[i] == "-- " || strings.TrimRight(lines[i], " ") == "--" {
			end = i
			break
		}
	}

	body := lines[start:end]
	if len(body) > 0 && body[0] == "" {
		body = body[1:]
	}
	if len(body) > 0 && body[len(body)-1] == "" {
		body = body[:len(body)-1]
	}
	return strings.Join(body, "\n")
}

func reviewVerb(state github.ReviewState) string {
	switch state {
	case github.ReviewApproved:
		return "approved"
	case github.ReviewChangesRequested:
		return "requested changes on"
	case github.ReviewDismissed:
		return "dismissed"
	default:
		return "commented on"
	}
}

func matchPrReviewCommented(ctx context.Context, gh Enricher, em *ParsedEmail) (outcome, Notification, error) {
	if em.Issue == nil || em.SourceURL == "" {
		return missStructural, nil, nil
	}
	caps := reviewCommentURLRe.FindStringSubmatch(em.SourceURL)
	if caps == nil {
		return missStructural, nil, nil
	}
	commentID, _ := strconv.ParseInt(caps[1], 10, 64)

	comment, err := gh.GetPRReviewComment(ctx, em.Issue.Repo, commentID)
	if err != nil {
		return missStructural, nil, err
	}
	if comment == nil {
		return missSoft, nil, nil
	}
	return hit, PrReviewCommented{
		URL:       em.SourceURL,
		PR:        *em.Issue,
		Commenter: comment.User,
		Comment:   comment.Body,
	}, nil
}

func matchDirectReviewRequested(ctx context.Context, gh Enricher, em *ParsedEmail) (outcome, Notification, error) {
	if em.Issue == nil || em.SourceURL == "" {
		return missStructural, nil, nil
	}
	caps := directReviewRe.FindStringSubmatch(firstLine(em))
	if caps == nil {
		return missStructural, nil, nil
	}

	reviewee, err := gh.GetUser(ctx, caps[1])
	if err != nil {
		return missStructural, nil, err
	}
	if reviewee == nil {
		return missSoft, nil, nil
	}
	return hit, DirectReviewRequested{Reviewee: *reviewee, PR: *em.Issue}, nil
}

func matchTeamReviewRequested(ctx context.Context, gh Enricher, em *ParsedEmail) (outcome, Notification, error) {
	if em.Issue == nil || em.SourceURL == "" {
		return missStructural, nil, nil
	}
	caps := teamReviewRe.FindStringSubmatch(firstLine(em))
	if caps == nil {
		return missStructural, nil, nil
	}

	reviewee, err := gh.GetUser(ctx, caps[1])
	if err != nil {
		return missStructural, nil, err
	}
	if reviewee == nil {
		return missSoft, nil, nil
	}
	return hit, TeamReviewRequested{Reviewee: *reviewee, PR: *em.Issue, Team: caps[2]}, nil
}

func matchIssueClosed(ctx context.Context, gh Enricher, em *ParsedEmail) (outcome, Notification, error) {
	if em.Issue == nil || em.SourceURL == "" {
		return missStructural, nil, nil
	}
	l := firstLine(em)
	if !strings.HasPrefix(l, "Closed #") && !strings.HasPrefix(l, "Merged") {
		return missStructural, nil, nil
	}
	caps := issueEventURLRe.FindStringSubmatch(em.SourceURL)
	if caps == nil {
		return missStructural, nil, nil
	}
	eventID, _ := strconv.ParseInt(caps[1], 10, 64)

	event, err := gh.GetIssueEvent(ctx, em.Issue.Repo, eventID)
	if err != nil {
		return missStructural, nil, err
	}
	if event == nil {
		return missSoft, nil, nil
	}
	return hit, IssueClosed{
		Closer:  event.Actor,
		Issue:   *em.Issue,
		IsMerge: event.Event == "merged",
	}, nil
}

func matchCommented(ctx context.Context, gh Enricher, em *ParsedEmail) (outcome, Notification, error) {
	if em.Issue == nil || em.SourceURL == "" {
		return missStructural, nil, nil
	}
	caps := issueCommentURLRe.FindStringSubmatch(em.SourceURL)
	if caps == nil {
		return missStructural, nil, nil
	}
	commentID, _ := strconv.ParseInt(caps[1], 10, 64)

	comment, err := gh.GetIssueComment(ctx, em.Issue.Repo, commentID)
	if err != nil {
		return missStructural, nil, err
	}
	if comment == nil {
		return missSoft, nil, nil
	}
	return hit, Commented{
		URL:       em.SourceURL,
		Issue:     *em.Issue,
		Commenter: comment.User,
		Comment:   comment.Body,
	}, nil
}

func matchPushed(ctx context.Context, gh Enricher, em *ParsedEmail) (outcome, Notification, error) {
	if em.Issue == nil || em.SourceURL == "" {
		return missStructural, nil, nil
	}
	caps := pushRe.FindStringSubmatch(firstLine(em))
	if caps == nil {
		return missStructural, nil, nil
	}

	committer, err := gh.GetUser(ctx, caps[1])
	if err != nil {
		return missStructural, nil, err
	}
	if committer == nil {
		return missSoft, nil, nil
	}

	count, _ := strconv.Atoi(caps[2])
	commits := extractCommits(em.Lines)
	if len(commits) != count {
		return missStructural, nil, &InvariantError{
			Msg: fmt.Sprintf("push email declares %d commits but lists %d", count, len(commits)),
		}
	}

	return hit, Pushed{
		PR:        *em.Issue,
		DiffURL:   em.SourceURL,
		Committer: *committer,
		Commits:   commits,
	}, nil
}

// extractCommits scans for "<40-hex-hash> <message>" lines. Only the first
// word of the message survives in the email body's summary format.
func extractCommits(lines []string) []github.CommitInfo {
	var commits []github.CommitInfo
	for _, l := range lines {
		parts := strings.Fields(l)
		if len(parts) < 2 {
			continue
		}
		if !commitHashRe.MatchString(parts[0]) {
			continue
		}
		commits = append(commits, github.CommitInfo{Hash: parts[0], Message: parts[1]})
	}
	return commits
}

func matchWorkflowCancelled(_ context.Context, _ Enricher, em *ParsedEmail) (outcome, Notification, error) {
	if !strings.Contains(em.Subject, "Run cancelled:") {
		return missStructural, nil, nil
	}

	var repo, workflow, resultURL string
	for _, l := range em.Lines {
		name, value, ok := strings.Cut(l, ":")
		if !ok {
			continue
		}
		switch name {
		case "Repository":
			repo = strings.TrimSpace(value)
		case "Workflow":
			workflow = strings.TrimSpace(value)
		case "View results":
			resultURL = strings.TrimSpace(value)
		}
	}
	if repo == "" || workflow == "" || resultURL == "" {
		return missSoft, nil, nil
	}

	return hit, WorkflowCancelled{
		Sender:       em.Sender,
		RepoFullName: repo,
		Workflow:     workflow,
		ResultURL:    resultURL,
	}, nil
}
