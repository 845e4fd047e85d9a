package slack

import "testing"

func TestExtractEmail(t *testing.T) {
	t.Parallel()
	msg := Message{
		TS: "1.0",
		Files: []File{{
			PrettyType: "email",
			Subject:    "[octo/demo] Add retries (PR #42)",
			From:       []EmailAddress{{Name: "GitHub", Address: "notifications@github.com"}},
			PlainText:  "body text",
		}},
	}

	em, ok := ExtractEmail(msg)
	if !ok {
		t.Fatal("ExtractEmail = false, want true")
	}
	if em.Subject != "[octo/demo] Add retries (PR #42)" {
		t.Fatalf("Subject = %q", em.Subject)
	}
	if em.SenderName != "GitHub" {
		t.Fatalf("SenderName = %q", em.SenderName)
	}
	if em.TextBody != "body text" {
		t.Fatalf("TextBody = %q", em.TextBody)
	}
}

func TestExtractEmailMisses(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		msg  Message
	}{
		{name: "no files", msg: Message{TS: "1.0", Text: "plain chat"}},
		{name: "non-email attachment", msg: Message{Files: []File{{PrettyType: "PNG"}}}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := ExtractEmail(tt.msg); ok {
				t.Fatal("ExtractEmail = true, want false")
			}
		})
	}
}

func TestExtractEmailNoSender(t *testing.T) {
	t.Parallel()
	em, ok := ExtractEmail(Message{Files: []File{{PrettyType: "email", Subject: "s"}}})
	if !ok {
		t.Fatal("ExtractEmail = false, want true")
	}
	if em.SenderName != "" {
		t.Fatalf("SenderName = %q, want empty", em.SenderName)
	}
}
