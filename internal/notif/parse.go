package notif

import (
	"regexp"
	"strconv"
	"strings"

	"ghrelay/internal/github"
	"ghrelay/internal/slack"
)

const githubBaseURL = "https://github.com"

// ParsedEmail is the normalized line/metadata view of a forwarded email's
// body that the matcher chain works on.
type ParsedEmail struct {
	Subject string
	Sender  string
	Lines   []string
	// Issue is the issue/PR named by the subject, when the subject has
	// GitHub's notification shape.
	Issue *github.IssueRef
	// SourceURL is the permalink from the email footer, when present.
	SourceURL string
}

// Matches subjects such as "Re: [octo/demo] Fix typo (#1234)" and the pull
// request form "... (PR #1234)".
var subjectRe = regexp.MustCompile(
	`^(?:Re: )?\[(?P<owner>[^/]+)/(?P<repo>[^\]]+)\] (?P<title>.+) \((?:PR )?#(?P<number>\d+)\)$`,
)

// ParseEmail derives a ParsedEmail deterministically from a forwarded
// email. It never fails; missing subject or footer metadata just leaves
// the optional fields unset.
func ParseEmail(em slack.Email) ParsedEmail {
	body := strings.ReplaceAll(em.TextBody, "\r", "")
	lines := strings.Split(body, "\n")

	return ParsedEmail{
		Subject:   em.Subject,
		Sender:    em.SenderName,
		Lines:     lines,
		Issue:     issueFromSubject(em.Subject),
		SourceURL: findSourceURL(lines),
	}
}

func issueFromSubject(subject string) *github.IssueRef {
	caps := subjectRe.FindStringSubmatch(subject)
	if caps == nil {
		return nil
	}
	number, err := strconv.Atoi(caps[4])
	if err != nil {
		return nil
	}
	return &github.IssueRef{
		Repo:   github.Repository{Owner: caps[1], Name: caps[2]},
		Number: number,
		Title:  caps[3],
	}
}

// findSourceURL inspects the last two lines for GitHub's footer: a marker
// line followed by the permalink.
func findSourceURL(lines []string) string {
	if len(lines) < 2 {
		return ""
	}
	marker := lines[len(lines)-2]
	if !strings.HasPrefix(marker, "Reply to this email directly or view it on GitHub:") &&
		!strings.HasPrefix(marker, "View it on GitHub:") {
		return ""
	}
	url := strings.TrimSpace(lines[len(lines)-1])
	if !strings.HasPrefix(url, githubBaseURL) {
		return ""
	}
	return url
}
