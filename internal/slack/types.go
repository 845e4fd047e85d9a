package slack

// Message is one entry of a channel's history, newest-first as returned by
// conversations.history.
type Message struct {
	TS    string `json:"ts"`
	Text  string `json:"text"`
	Files []File `json:"files,omitempty"`
}

// File is a message attachment. Slack tags forwarded emails with
// pretty_type "email"; all other attachment kinds are ignored here.
type File struct {
	PrettyType string         `json:"pretty_type"`
	Subject    string         `json:"subject"`
	To         []EmailAddress `json:"to"`
	From       []EmailAddress `json:"from"`
	PlainText  string         `json:"plain_text"`
}

type EmailAddress struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

// Email is a forwarded email pulled out of a message attachment.
type Email struct {
	Subject    string
	SenderName string
	TextBody   string
}

// ExtractEmail returns the forwarded email carried by msg, if any.
// Only the first attachment is considered; a message without an email
// attachment is not an error, it just isn't a forwarded notification.
func ExtractEmail(msg Message) (Email, bool) {
	if len(msg.Files) == 0 {
		return Email{}, false
	}
	f := msg.Files[0]
	if f.PrettyType != "email" {
		return Email{}, false
	}
	var sender string
	if len(f.From) > 0 {
		sender = f.From[0].Name
	}
	return Email{
		Subject:    f.Subject,
		SenderName: sender,
		TextBody:   f.PlainText,
	}, true
}
