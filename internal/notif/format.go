package notif

import (
	"fmt"
	"strings"

	"ghrelay/internal/github"
)

// ChatMessage is the rendered form of a notification, ready for the Slack
// sink. Username/IconURL override the bot's identity so each message shows
// up under the acting GitHub user.
type ChatMessage struct {
	Text     string
	Username string
	IconURL  string
}

const maxCommitMessages = 10

// Format renders a notification. It returns nil for variants that must not
// be sent (TeamReviewRequested is only kept for the unsubscribe side
// effect).
func Format(n Notification) *ChatMessage {
	switch d := n.(type) {
	case Unknown:
		return &ChatMessage{
			Text:     strings.Join(d.Body, "\n"),
			Username: d.Sender,
		}

	case PrOpened:
		login := "@" + d.Opener.Login
		return &ChatMessage{
			Text:     fmt.Sprintf("%s opened %s", login, issueSubject(d.PR, "")),
			Username: login,
			IconURL:  d.Opener.AvatarURL,
		}

	case PrReviewed:
		login := "@" + d.Commenter.Login
		return &ChatMessage{
			Text: fmt.Sprintf("%s %s %s\n%s",
				login, reviewStateEmoji(d.State), issueSubject(d.PR, d.URL), d.Comment),
			Username: login,
			IconURL:  d.Commenter.AvatarURL,
		}

	case PrReviewCommented:
		login := "@" + d.Commenter.Login
		return &ChatMessage{
			Text:     fmt.Sprintf("%s 💬  %s\n%s", login, issueSubject(d.PR, d.URL), d.Comment),
			Username: login,
			IconURL:  d.Commenter.AvatarURL,
		}

	case DirectReviewRequested:
		login := "@" + d.Reviewee.Login
		return &ChatMessage{
			Text:     fmt.Sprintf("%s requested your review on %s", login, issueSubject(d.PR, "")),
			Username: login,
			IconURL:  d.Reviewee.AvatarURL,
		}

	case TeamReviewRequested:
		// Suppressed: team-wide review pings are noise. The notification
		// still reaches the orchestrator for the unsubscribe heuristic.
		return nil

	case IssueClosed:
		login := "@" + d.Closer.Login
		action := "closed"
		if d.IsMerge {
			action = "merged"
		}
		return &ChatMessage{
			Text:     fmt.Sprintf("%s %s %s", login, action, issueSubject(d.Issue, "")),
			Username: login,
			IconURL:  d.Closer.AvatarURL,
		}

	case Commented:
		login := "@" + d.Commenter.Login
		return &ChatMessage{
			Text:     fmt.Sprintf("%s 💬  %s\n%s", login, issueSubject(d.Issue, d.URL), d.Comment),
			Username: login,
			IconURL:  d.Commenter.AvatarURL,
		}

	case Pushed:
		login := "@" + d.Committer.Login
		summary := fmt.Sprintf("%d commit%s", len(d.Commits), plural(len(d.Commits)))
		return &ChatMessage{
			Text: fmt.Sprintf("%s pushed <%s|%s> to %s\n%s",
				login, d.DiffURL, summary, issueSubject(d.PR, ""), joinCommitMessages(d.Commits, maxCommitMessages)),
			Username: login,
			IconURL:  d.Committer.AvatarURL,
		}

	case WorkflowCancelled:
		return &ChatMessage{
			Text: fmt.Sprintf("Workflow run cancelled: %s on [%s] (<%s|results>)",
				d.Workflow, d.RepoFullName, d.ResultURL),
			Username: d.Sender,
		}
	}
	return nil
}

// ShouldAlert reports whether the message gets a channel mention. Routine
// lifecycle events (pushes, opens, closes) stay silent; everything that
// asks for a human's attention alerts.
func ShouldAlert(n Notification) bool {
	switch n.(type) {
	case Pushed, PrOpened, IssueClosed:
		return false
	}
	return true
}

// issueSubject renders "[owner/repo#N] title" in Slack markup; titleLink,
// when set, turns the title into a link to the triggering event.
func issueSubject(ref github.IssueRef, titleLink string) string {
	prURL := fmt.Sprintf("%s/%s/%s/pull/%d", githubBaseURL, ref.Repo.Owner, ref.Repo.Name, ref.Number)
	title := ref.Title
	if titleLink != "" {
		title = fmt.Sprintf("<%s|%s>", titleLink, ref.Title)
	}
	return fmt.Sprintf("[%s<%s|#%d>] %s", ref.Repo.FullName(), prURL, ref.Number, title)
}

func reviewStateEmoji(state github.ReviewState) string {
	switch state {
	case github.ReviewApproved:
		return "👍"
	case github.ReviewChangesRequested:
		return "⚠️"
	case github.ReviewDismissed:
		return ""
	default:
		return "💬"
	}
}

func joinCommitMessages(commits []github.CommitInfo, max int) string {
	n := len(commits)
	if n > max {
		commits = commits[:max]
	}
	msgs := make([]string, 0, len(commits)+1)
	for _, c := range commits {
		msgs = append(msgs, c.Message)
	}
	if n > max {
		msgs = append(msgs, fmt.Sprintf("...and %d more commits", n-max))
	}
	return strings.Join(msgs, "\n")
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
