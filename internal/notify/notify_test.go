package notify_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campushustle/internal/config"
	"campushustle/internal/db"
	"campushustle/internal/engine"
	"campushustle/internal/eventbus"
	"campushustle/internal/migrate"
	"campushustle/internal/notify"
	"campushustle/internal/repo"
)

type captureMailer struct {
	mu   sync.Mutex
	sent []notify.Email
	done chan struct{}
}

func (m *captureMailer) Send(_ context.Context, e notify.Email) error {
	m.mu.Lock()
	m.sent = append(m.sent, e)
	m.mu.Unlock()
	m.done <- struct{}{}
	return nil
}

func setup(t *testing.T) (engine.Engine, *eventbus.Bus) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	bus := eventbus.New(nil)
	eng := engine.New(conn, config.Default())
	eng.Bus = bus
	return eng, bus
}

func TestNotifierEmailsRecipient(t *testing.T) {
	eng, bus := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, _, err := eng.EnsureProfile(ctx, "owner", "Njeri", "njeri@example.com")
	require.NoError(t, err)
	_, _, err = eng.EnsureProfile(ctx, "worker", "Kamau", "")
	require.NoError(t, err)
	task, err := eng.CreateTask(ctx, engine.TaskCreateOptions{
		Title: "Move boxes", Description: "Two boxes to hostel B", Category: "services",
		OfferType: "cash", OfferAmount: "30", Deadline: "2030-01-01", ActorID: "owner",
	})
	require.NoError(t, err)

	mailer := &captureMailer{done: make(chan struct{}, 4)}
	n := notify.Notifier{Repo: repo.New(eng.DB), Mailer: mailer, From: "noreply@campushustle.local", Subject: "New message on CampusHustle"}
	sub := bus.Subscribe("notifier", 16)
	defer sub.Close()
	finished := make(chan struct{})
	go func() {
		n.Run(ctx, sub.Events)
		close(finished)
	}()

	_, err = eng.SendMessage(ctx, engine.SendMessageOptions{TaskID: task.ID, SenderID: "worker", RecipientID: "owner", Text: strings.Repeat("a", 120)})
	require.NoError(t, err)

	select {
	case <-mailer.done:
	case <-time.After(5 * time.Second):
		t.Fatal("no email sent")
	}
	cancel()
	<-finished

	require.Len(t, mailer.sent, 1)
	got := mailer.sent[0]
	assert.Equal(t, "njeri@example.com", got.To)
	assert.Equal(t, "New message on CampusHustle", got.Subject)
	assert.Contains(t, got.Body, "Hello Njeri,")
	assert.Contains(t, got.Body, "<strong>Kamau</strong>")
	assert.Contains(t, got.Body, "<strong>Move boxes</strong>")
	assert.Contains(t, got.Body, strings.Repeat("a", 100)+"...")
}

func TestHandleWithoutRecipientEmail(t *testing.T) {
	eng, _ := setup(t)
	ctx := context.Background()
	_, _, err := eng.EnsureProfile(ctx, "owner", "Njeri", "")
	require.NoError(t, err)
	task, err := eng.CreateTask(ctx, engine.TaskCreateOptions{
		Title: "Move boxes", Description: "desc", Category: "services",
		OfferType: "trade", TradeDeal: "lunch", Deadline: "2030-01-01", ActorID: "owner",
	})
	require.NoError(t, err)
	msg, err := eng.SendMessage(ctx, engine.SendMessageOptions{TaskID: task.ID, SenderID: "ghost", RecipientID: "owner", Text: "hi"})
	require.NoError(t, err)

	evts, err := eng.EventLog(ctx, repo.EventFilters{EntityID: msg.ID})
	require.NoError(t, err)
	require.Len(t, evts, 1)

	n := notify.Notifier{Repo: repo.New(eng.DB), Mailer: &captureMailer{done: make(chan struct{}, 1)}}
	assert.ErrorIs(t, n.Handle(ctx, evts[0]), notify.ErrNoEmail)
}

func TestRenderFallbacksAndPreview(t *testing.T) {
	assert.Equal(t, "short", notify.Preview("short"))
	assert.Equal(t, strings.Repeat("é", 100)+"...", notify.Preview(strings.Repeat("é", 101)))
	body := notify.Render("Njeri", "Unknown User", "Unknown hustle", "hello")
	assert.Contains(t, body, "<strong>Unknown User</strong>")
	assert.Contains(t, body, "Message preview: \"hello\"")
}

func TestRenderEscapesAtRenderTime(t *testing.T) {
	body := notify.Render("Tom &amp; Ann", "O&#x27;Brien", "C++/Go <tutor>", `<b>hi</b> & "bye"`)
	assert.Contains(t, body, "<h2>Hello Tom &amp; Ann,</h2>")
	assert.Contains(t, body, "<strong>O&#39;Brien</strong>")
	assert.Contains(t, body, "<strong>C++/Go &lt;tutor&gt;</strong>")
	assert.Contains(t, body, "Message preview: \"&lt;b&gt;hi&lt;/b&gt; &amp; &#34;bye&#34;\"")
	assert.NotContains(t, body, "<b>hi</b>")
}
