// Package notify turns committed message events into email notifications.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/go-pkgz/lgr"
	"github.com/sourcegraph/conc"

	"campushustle/internal/domain"
	"campushustle/internal/events"
	"campushustle/internal/repo"
)

const (
	previewRunes = 100
	unknownUser  = "Unknown User"
	unknownTask  = "Unknown hustle"
)

// ErrNoEmail is returned when the recipient has no address on file.
var ErrNoEmail = errors.New("recipient email not found")

type Email struct {
	To      string
	From    string
	Subject string
	Body    string
}

// Mailer delivers a rendered email.
type Mailer interface {
	Send(ctx context.Context, m Email) error
}

// LogMailer writes emails to the log instead of sending them.
type LogMailer struct {
	Logger lgr.L
}

func (m LogMailer) Send(_ context.Context, e Email) error {
	l := m.Logger
	if l == nil {
		l = lgr.NoOp
	}
	l.Logf("[INFO] would send email to %s", e.To)
	l.Logf("[DEBUG] subject: %s", e.Subject)
	l.Logf("[DEBUG] content: %s", e.Body)
	return nil
}

// Notifier emails the recipient of every new chat message.
type Notifier struct {
	Repo    repo.Repo
	Mailer  Mailer
	From    string
	Subject string
	Logger  lgr.L
}

func (n Notifier) log() lgr.L {
	if n.Logger == nil {
		return lgr.NoOp
	}
	return n.Logger
}

// Run handles events from ch until it is closed or ctx ends, then waits for
// in-flight deliveries.
func (n Notifier) Run(ctx context.Context, ch <-chan domain.Event) {
	wg := conc.NewWaitGroup()
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if evt.Type != events.MessageSent {
				continue
			}
			wg.Go(func() {
				if err := n.Handle(ctx, evt); err != nil {
					n.log().Logf("[WARN] email notification for message %s: %v", evt.EntityID, err)
				}
			})
		}
	}
}

// Handle renders and sends the email for one message.sent event.
func (n Notifier) Handle(ctx context.Context, evt domain.Event) error {
	var payload struct {
		RecipientID string `json:"recipient_id"`
	}
	if err := json.Unmarshal([]byte(evt.Payload), &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	msg, err := n.Repo.GetMessage(ctx, evt.EntityID)
	if err != nil {
		return fmt.Errorf("load message: %w", err)
	}
	recipientID := payload.RecipientID
	if recipientID == "" {
		recipientID = msg.RecipientID
	}
	recipient, err := n.Repo.GetProfile(ctx, recipientID)
	if err != nil {
		return fmt.Errorf("load recipient %s: %w", recipientID, err)
	}
	if recipient.Email == "" {
		return ErrNoEmail
	}
	senderName := unknownUser
	if sender, err := n.Repo.GetProfile(ctx, msg.SenderID); err == nil && sender.Name != "" {
		senderName = sender.Name
	}
	title := unknownTask
	if t, err := n.Repo.GetTask(ctx, msg.TaskID); err == nil && t.Title != "" {
		title = t.Title
	}
	email := Email{
		To:      recipient.Email,
		From:    n.From,
		Subject: n.Subject,
		Body:    Render(recipient.Name, senderName, title, msg.Message),
	}
	mailer := n.Mailer
	if mailer == nil {
		mailer = LogMailer{Logger: n.log()}
	}
	return mailer.Send(ctx, email)
}

// Preview shortens text to its first hundred characters.
func Preview(text string) string {
	r := []rune(text)
	if len(r) <= previewRunes {
		return text
	}
	return string(r[:previewRunes]) + "..."
}

// Render builds the HTML body. Title and message arrive as typed; names come
// from profiles, which are stored escaped.
func Render(recipient, sender, title, message string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<h2>Hello %s,</h2>\n", escapeName(recipient))
	fmt.Fprintf(&b, "<p>You have a new message from <strong>%s</strong> regarding your hustle task: <strong>%s</strong>.</p>\n", escapeName(sender), html.EscapeString(title))
	fmt.Fprintf(&b, "<p>Message preview: \"%s\"</p>\n", html.EscapeString(Preview(message)))
	b.WriteString("<p>Log in to your CampusHustle account to respond.</p>\n")
	b.WriteString("<p>Best regards,<br>The CampusHustle Team</p>\n")
	return b.String()
}

func escapeName(s string) string {
	return html.EscapeString(html.UnescapeString(s))
}
