package hustlesdk

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campushustle/internal/config"
	"campushustle/internal/db"
	"campushustle/internal/engine"
	"campushustle/internal/migrate"
	"campushustle/internal/server"
)

func newAPI(t *testing.T) *httptest.Server {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	handler, err := server.New(server.Config{
		Engine:   engine.New(conn, config.Default()),
		BasePath: "/v1",
		Auth:     server.AuthConfig{JWTSecret: "sdk-secret", AllowLegacyUserHeader: true},
	})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func clientAs(srv *httptest.Server, user string) *Client {
	c := New(srv.URL)
	c.UserID = user
	return c
}

func TestClientHustleLifecycle(t *testing.T) {
	srv := newAPI(t)
	ctx := context.Background()
	owner, worker := clientAs(srv, "owner"), clientAs(srv, "worker")

	task, err := owner.CreateTask(ctx, NewTask{
		Title: "Fix laptop", Description: "Screen flickers", Category: "tech",
		OfferType: "cash", OfferAmount: "40", Deadline: "2030-06-01",
	})
	require.NoError(t, err)
	assert.Equal(t, "open", task.Status)

	_, err = worker.PlaceBid(ctx, task.ID, 60, "cheap")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 400, apiErr.StatusCode)
	assert.Equal(t, "Maximum bid amount is KSh 50", apiErr.Message)

	b, err := worker.PlaceBid(ctx, task.ID, 35, "on it")
	require.NoError(t, err)
	assert.Equal(t, 35, b.Amount)

	bids, err := owner.ListBids(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, bids, 1)

	assigned, err := owner.Assign(ctx, task.ID, "worker")
	require.NoError(t, err)
	assert.Equal(t, "in progress", assigned.Status)

	pay, err := worker.PayForTask(ctx, task.ID, "0712345678")
	require.NoError(t, err)
	assert.Equal(t, "processing", pay.Status)
	assert.Equal(t, "owner", pay.PayeeID)

	done, err := owner.Complete(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "finished", done.Status)

	_, err = owner.Assign(ctx, task.ID, "worker")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "invalid_transition", apiErr.Code)

	page, err := owner.ListTasks(ctx, TaskQuery{Status: "finished"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "KSh 40", page.Items[0].Offer)
}

func TestClientMessagesAndNotifications(t *testing.T) {
	srv := newAPI(t)
	ctx := context.Background()
	owner, asker := clientAs(srv, "owner"), clientAs(srv, "asker")

	task, err := owner.CreateTask(ctx, NewTask{
		Title: "Notes", Description: "Calculus notes", Category: "academic",
		OfferType: "trade", TradeDeal: "lunch", Deadline: "2030-06-01",
	})
	require.NoError(t, err)
	_, err = asker.SendMessage(ctx, task.ID, "owner", "still available?")
	require.NoError(t, err)
	_, err = owner.SendMessage(ctx, task.ID, "asker", "yes")
	require.NoError(t, err)

	thread, err := asker.Thread(ctx, task.ID, "owner")
	require.NoError(t, err)
	require.Len(t, thread, 2)
	assert.Equal(t, "still available?", thread[0].Message)

	n, err := owner.UnreadCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	notes, err := owner.Notifications(ctx, true, 10, "")
	require.NoError(t, err)
	require.Len(t, notes.Items, 1)
	assert.Equal(t, "Notes", notes.Items[0].TaskTitle)

	marked, err := owner.MarkAllRead(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, marked)

	events, err := owner.EventsPage(ctx, 10, "")
	require.NoError(t, err)
	assert.NotEmpty(t, events.Items)
}

func TestClientBasePath(t *testing.T) {
	c := New("http://localhost:8080/")
	assert.Equal(t, "http://localhost:8080/v1", c.base())
	c.BasePath = ""
	assert.Equal(t, "http://localhost:8080", c.base())
}
