package notif

import (
	"fmt"
	"strings"
	"testing"

	"ghrelay/internal/github"
)

var testPR = github.IssueRef{
	Repo:   github.Repository{Owner: "octo", Name: "demo"},
	Number: 42,
	Title:  "Add retries",
}

func TestFormatPrOpened(t *testing.T) {
	t.Parallel()
	msg := Format(PrOpened{
		Opener: github.User{Login: "alice", AvatarURL: "https://avatars.test/alice"},
		PR:     testPR,
	})
	if msg == nil {
		t.Fatal("Format returned nil")
	}
	want := "@alice opened [octo/demo<https://github.com/octo/demo/pull/42|#42>] Add retries"
	if msg.Text != want {
		t.Fatalf("Text = %q, want %q", msg.Text, want)
	}
	if msg.Username != "@alice" || msg.IconURL != "https://avatars.test/alice" {
		t.Fatalf("identity = %q/%q", msg.Username, msg.IconURL)
	}
}

func TestFormatPrReviewedLinksTitleToReview(t *testing.T) {
	t.Parallel()
	url := "https://github.com/octo/demo/pull/42#pullrequestreview-7"
	msg := Format(PrReviewed{
		URL:       url,
		PR:        testPR,
		State:     github.ReviewApproved,
		Commenter: github.User{Login: "bob"},
		Comment:   "Ship it.",
	})
	if !strings.Contains(msg.Text, "👍") {
		t.Fatalf("Text missing approval emoji: %q", msg.Text)
	}
	if !strings.Contains(msg.Text, fmt.Sprintf("<%s|Add retries>", url)) {
		t.Fatalf("Text missing linked title: %q", msg.Text)
	}
	if !strings.HasSuffix(msg.Text, "\nShip it.") {
		t.Fatalf("Text missing comment body: %q", msg.Text)
	}
}

func TestFormatTeamReviewRequestedSuppressed(t *testing.T) {
	t.Parallel()
	msg := Format(TeamReviewRequested{
		Reviewee: github.User{Login: "dave"},
		PR:       testPR,
		Team:     "octo/backend",
	})
	if msg != nil {
		t.Fatalf("Format = %+v, want nil", msg)
	}
}

func TestFormatUnknownUsesSenderIdentity(t *testing.T) {
	t.Parallel()
	msg := Format(Unknown{Sender: "GitHub", Body: []string{"line one", "line two"}})
	if msg.Text != "line one\nline two" {
		t.Fatalf("Text = %q", msg.Text)
	}
	if msg.Username != "GitHub" || msg.IconURL != "" {
		t.Fatalf("identity = %q/%q", msg.Username, msg.IconURL)
	}
}

func TestFormatPushedTruncatesCommitList(t *testing.T) {
	t.Parallel()
	commits := make([]github.CommitInfo, 13)
	for i := range commits {
		commits[i] = github.CommitInfo{
			Hash:    strings.Repeat("a", 40),
			Message: fmt.Sprintf("msg%d", i),
		}
	}
	msg := Format(Pushed{
		PR:        testPR,
		DiffURL:   "https://github.com/octo/demo/pull/42/files/a..b",
		Committer: github.User{Login: "grace"},
		Commits:   commits,
	})
	if !strings.Contains(msg.Text, "13 commits") {
		t.Fatalf("Text missing commit count: %q", msg.Text)
	}
	if !strings.Contains(msg.Text, "msg9") || strings.Contains(msg.Text, "msg10") {
		t.Fatalf("commit list not truncated at %d: %q", maxCommitMessages, msg.Text)
	}
	if !strings.Contains(msg.Text, "...and 3 more commits") {
		t.Fatalf("Text missing overflow line: %q", msg.Text)
	}
}

func TestFormatPushedSingleCommit(t *testing.T) {
	t.Parallel()
	msg := Format(Pushed{
		PR:        testPR,
		DiffURL:   "https://github.com/octo/demo/pull/42/files/a..b",
		Committer: github.User{Login: "grace"},
		Commits:   []github.CommitInfo{{Hash: strings.Repeat("a", 40), Message: "Fix"}},
	})
	if !strings.Contains(msg.Text, "|1 commit>") {
		t.Fatalf("Text = %q, want singular commit count", msg.Text)
	}
}

func TestFormatIssueClosedVerb(t *testing.T) {
	t.Parallel()
	closed := Format(IssueClosed{Closer: github.User{Login: "erin"}, Issue: testPR})
	if !strings.HasPrefix(closed.Text, "@erin closed ") {
		t.Fatalf("Text = %q", closed.Text)
	}
	merged := Format(IssueClosed{Closer: github.User{Login: "erin"}, Issue: testPR, IsMerge: true})
	if !strings.HasPrefix(merged.Text, "@erin merged ") {
		t.Fatalf("Text = %q", merged.Text)
	}
}

func TestShouldAlert(t *testing.T) {
	t.Parallel()
	silent := []Notification{
		Pushed{},
		PrOpened{},
		IssueClosed{},
	}
	for _, n := range silent {
		if ShouldAlert(n) {
			t.Fatalf("ShouldAlert(%s) = true, want false", n.Kind())
		}
	}
	loud := []Notification{
		Unknown{},
		PrReviewed{},
		PrReviewCommented{},
		DirectReviewRequested{},
		Commented{},
		WorkflowCancelled{},
	}
	for _, n := range loud {
		if !ShouldAlert(n) {
			t.Fatalf("ShouldAlert(%s) = false, want true", n.Kind())
		}
	}
}
