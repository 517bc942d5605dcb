package engine_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"campushustle/internal/capability"
	"campushustle/internal/config"
	"campushustle/internal/db"
	"campushustle/internal/domain"
	"campushustle/internal/engine"
	"campushustle/internal/engine/auth"
	"campushustle/internal/migrate"
	"campushustle/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

// tickingClock advances one second per reading so rows get distinct,
// ordered timestamps.
type tickingClock struct {
	mu  sync.Mutex
	cur time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(time.Second)
	return c.cur
}

func newTestEnvAt(t *testing.T, version int) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.MigrateTo(conn, version); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	clock := &tickingClock{cur: time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)}
	eng.Now = clock.Now
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func newTestEnv(t *testing.T) testEnv {
	return newTestEnvAt(t, 0)
}

func (env testEnv) cashTask(t *testing.T, owner, amount string) domain.Task {
	t.Helper()
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title:       "Fix my laptop",
		Description: "Windows keeps crashing",
		Category:    "tech",
		OfferType:   domain.OfferCash,
		OfferAmount: amount,
		Deadline:    "2030-05-01T12:00:00Z",
		ActorID:     owner,
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func (env testEnv) tradeTask(t *testing.T, owner, deal string) domain.Task {
	t.Helper()
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title:       "Design a poster",
		Description: "For the chess club",
		Category:    "creative",
		OfferType:   domain.OfferTrade,
		TradeDeal:   deal,
		Deadline:    "2030-05-01",
		ActorID:     owner,
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func (env testEnv) bid(t *testing.T, taskID, bidder, amount string) domain.Bid {
	t.Helper()
	b, err := env.Engine.SubmitBid(env.Ctx, engine.SubmitBidOptions{TaskID: taskID, BidderID: bidder, Amount: amount, Message: "I can do it"})
	if err != nil {
		t.Fatalf("submit bid: %v", err)
	}
	return b
}

func TestBidAboveCeilingIsRejectedWithoutWrite(t *testing.T) {
	env := newTestEnv(t)
	task := env.cashTask(t, "owner", "100")

	for _, amount := range []string{"51", "500", "0", "-3", "abc", ""} {
		_, err := env.Engine.SubmitBid(env.Ctx, engine.SubmitBidOptions{TaskID: task.ID, BidderID: "a", Amount: amount, Message: "hi"})
		var ve engine.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("amount %q: expected validation error, got %v", amount, err)
		}
	}
	_, err := env.Engine.SubmitBid(env.Ctx, engine.SubmitBidOptions{TaskID: task.ID, BidderID: "a", Amount: "51", Message: "hi"})
	if err == nil || err.Error() != "Maximum bid amount is KSh 50" {
		t.Fatalf("unexpected ceiling error: %v", err)
	}
	_, err = env.Engine.SubmitBid(env.Ctx, engine.SubmitBidOptions{TaskID: task.ID, BidderID: "a", Amount: "20", Message: "   "})
	if err == nil || err.Error() != "Please enter a message with your bid" {
		t.Fatalf("unexpected message error: %v", err)
	}
	list, err := env.Engine.ListBids(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("list bids: %v", err)
	}
	if len(list.Bids) != 0 {
		t.Fatalf("rejected bids were stored: %+v", list.Bids)
	}
}

func TestBidsListedNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	task := env.cashTask(t, "owner", "100")
	if _, _, err := env.Engine.EnsureProfile(env.Ctx, "b2", "Brenda", ""); err != nil {
		t.Fatalf("ensure profile: %v", err)
	}
	first, err := env.Engine.SubmitBid(env.Ctx, engine.SubmitBidOptions{TaskID: task.ID, BidderID: "b1", Amount: "1", Message: "cheap", BidderName: "Alex"})
	if err != nil {
		t.Fatal(err)
	}
	second := env.bid(t, task.ID, "b2", "50")
	third := env.bid(t, task.ID, "b3", "25")

	list, err := env.Engine.ListBids(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("list bids: %v", err)
	}
	if list.Notice != "" {
		t.Fatalf("unexpected notice %q", list.Notice)
	}
	got := []string{}
	for _, b := range list.Bids {
		got = append(got, b.ID)
	}
	want := []string{third.ID, second.ID, first.ID}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("bids not newest first: %v want %v", got, want)
	}
	names := map[string]string{}
	for _, b := range list.Bids {
		names[b.BidderID] = b.BidderName
	}
	if names["b1"] != "Alex" || names["b2"] != "Brenda" || names["b3"] != "Anonymous User" {
		t.Fatalf("unexpected bidder names: %v", names)
	}
}

func TestBidderNameIsSnapshot(t *testing.T) {
	env := newTestEnv(t)
	task := env.cashTask(t, "owner", "100")
	if _, _, err := env.Engine.EnsureProfile(env.Ctx, "b1", "Old Name", ""); err != nil {
		t.Fatal(err)
	}
	env.bid(t, task.ID, "b1", "10")
	if _, err := env.Engine.UpdateProfile(env.Ctx, "b1", engine.ProfileUpdate{Name: "New Name"}); err != nil {
		t.Fatalf("update profile: %v", err)
	}
	list, err := env.Engine.ListBids(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if list.Bids[0].BidderName != "Old Name" {
		t.Fatalf("bidder name changed with profile: %q", list.Bids[0].BidderName)
	}
}

func TestPlaceBidCallerChecks(t *testing.T) {
	env := newTestEnv(t)
	task := env.cashTask(t, "owner", "100")
	if _, err := env.Engine.PlaceBid(env.Ctx, engine.SubmitBidOptions{TaskID: task.ID, BidderID: "owner", Amount: "10", Message: "me"}); err == nil {
		t.Fatalf("owner was allowed to bid")
	}
	if _, err := env.Engine.PlaceBid(env.Ctx, engine.SubmitBidOptions{TaskID: "missing", BidderID: "a", Amount: "10", Message: "me"}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	env.bid(t, task.ID, "a", "10")
	if _, err := env.Engine.Assign(env.Ctx, task.ID, "owner", "a"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.PlaceBid(env.Ctx, engine.SubmitBidOptions{TaskID: task.ID, BidderID: "b", Amount: "10", Message: "late"}); err == nil {
		t.Fatalf("bid accepted on assigned task")
	}
}

func TestAssignOnlyFromOpen(t *testing.T) {
	env := newTestEnv(t)
	task := env.cashTask(t, "owner", "100")
	env.bid(t, task.ID, "a", "30")
	env.bid(t, task.ID, "b", "40")

	assigned, err := env.Engine.Assign(env.Ctx, task.ID, "owner", "a")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if assigned.Status != domain.StatusInProgress || assigned.AssignedTo == nil || *assigned.AssignedTo != "a" {
		t.Fatalf("unexpected task after assign: %+v", assigned)
	}

	_, err = env.Engine.Assign(env.Ctx, task.ID, "owner", "b")
	var te engine.TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("expected transition error, got %v", err)
	}
	if te.From != domain.StatusInProgress {
		t.Fatalf("unexpected from status %q", te.From)
	}
	got, err := env.Engine.GetTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusInProgress || *got.AssignedTo != "a" {
		t.Fatalf("second assign changed task: %+v", got.Task)
	}
}

func TestAssignChecksOwnerAndBidder(t *testing.T) {
	env := newTestEnv(t)
	task := env.cashTask(t, "owner", "100")
	env.bid(t, task.ID, "a", "30")

	_, err := env.Engine.Assign(env.Ctx, task.ID, "intruder", "a")
	var ue auth.UnauthorizedError
	if !errors.As(err, &ue) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	_, err = env.Engine.Assign(env.Ctx, task.ID, "owner", "stranger")
	var ib auth.InvalidBidderError
	if !errors.As(err, &ib) {
		t.Fatalf("expected invalid bidder, got %v", err)
	}
	if _, err := env.Engine.Assign(env.Ctx, "missing", "owner", "a"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	got, err := env.Engine.GetTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusOpen || got.AssignedTo != nil {
		t.Fatalf("rejected assign modified task: %+v", got.Task)
	}
}

func TestCompleteRequiresInProgress(t *testing.T) {
	env := newTestEnv(t)
	task := env.cashTask(t, "owner", "100")

	_, err := env.Engine.Complete(env.Ctx, task.ID, "owner")
	var te engine.TransitionError
	if !errors.As(err, &te) || te.From != domain.StatusOpen {
		t.Fatalf("complete on open task: %v", err)
	}

	env.bid(t, task.ID, "a", "30")
	if _, err := env.Engine.Assign(env.Ctx, task.ID, "owner", "a"); err != nil {
		t.Fatal(err)
	}
	var ue auth.UnauthorizedError
	if _, err := env.Engine.Complete(env.Ctx, task.ID, "a"); !errors.As(err, &ue) {
		t.Fatalf("assignee completed task: %v", err)
	}
	done, err := env.Engine.Complete(env.Ctx, task.ID, "owner")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != domain.StatusFinished {
		t.Fatalf("status %q", done.Status)
	}
	if _, err := env.Engine.Complete(env.Ctx, task.ID, "owner"); !errors.As(err, &te) || te.From != domain.StatusFinished {
		t.Fatalf("complete on finished task: %v", err)
	}
}

func TestScenarioBidAssignCompleteThenAssignFails(t *testing.T) {
	env := newTestEnv(t)
	task := env.cashTask(t, "owner", "50")
	env.bid(t, task.ID, "A", "50")
	env.bid(t, task.ID, "B", "45")

	assigned, err := env.Engine.Assign(env.Ctx, task.ID, "owner", "A")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if assigned.Status != domain.StatusInProgress || *assigned.AssignedTo != "A" {
		t.Fatalf("unexpected assign result %+v", assigned)
	}
	finished, err := env.Engine.Complete(env.Ctx, task.ID, "owner")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if finished.Status != domain.StatusFinished {
		t.Fatalf("status %q", finished.Status)
	}
	if _, err := env.Engine.Assign(env.Ctx, task.ID, "owner", "B"); err == nil {
		t.Fatalf("assign after completion succeeded")
	}
	got, err := env.Engine.GetTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusFinished || *got.AssignedTo != "A" {
		t.Fatalf("task changed after failed assign: %+v", got.Task)
	}

	evts, err := env.Engine.EventLog(env.Ctx, repo.EventFilters{EntityID: task.ID})
	if err != nil {
		t.Fatal(err)
	}
	types := []string{}
	for _, e := range evts {
		types = append(types, e.Type)
	}
	if strings.Join(types, ",") != "task.completed,task.assigned,task.created" {
		t.Fatalf("unexpected task events %v", types)
	}
}

func TestOfferStringsAndPosterFallback(t *testing.T) {
	env := newTestEnv(t)
	owner := uuid.NewString()
	if _, _, err := env.Engine.EnsureProfile(env.Ctx, owner, "Wanjiku", "w@example.com"); err != nil {
		t.Fatal(err)
	}
	cash := env.cashTask(t, owner, "500")
	trade := env.tradeTask(t, "not-a-uuid", "tutoring")
	ghost := env.cashTask(t, uuid.NewString(), "20")

	tasks, err := env.Engine.ListTasks(env.Ctx, engine.ListTaskOptions{})
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(tasks))
	}
	byID := map[string]domain.TaskView{}
	for _, tv := range tasks {
		byID[tv.ID] = tv
	}
	if got := byID[cash.ID]; got.Offer != "KSh 500" || got.Poster.Name != "Wanjiku" || got.Poster.TrustScore != 3.0 {
		t.Fatalf("cash task view: %+v", got)
	}
	if got := byID[trade.ID]; got.Offer != "tutoring" || got.Poster.Name != "Community Member" {
		t.Fatalf("trade task view: %+v", got)
	}
	if got := byID[ghost.ID]; got.Poster.Name != "Community Member" {
		t.Fatalf("missing profile view: %+v", got)
	}
	if tasks[0].ID != ghost.ID || tasks[2].ID != cash.ID {
		t.Fatalf("tasks not newest first")
	}
}

func TestListTasksBidCountsAndPaging(t *testing.T) {
	env := newTestEnv(t)
	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, env.cashTask(t, "owner", "10").ID)
	}
	env.bid(t, ids[0], "a", "5")
	env.bid(t, ids[0], "b", "6")

	page, err := env.Engine.ListTasks(env.Ctx, engine.ListTaskOptions{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0].ID != ids[4] || page[1].ID != ids[3] {
		t.Fatalf("unexpected first page")
	}
	last := page[1]
	rest, err := env.Engine.ListTasks(env.Ctx, engine.ListTaskOptions{Limit: 10, CursorCreatedAt: last.CreatedAt, CursorID: last.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 3 || rest[2].ID != ids[0] {
		t.Fatalf("unexpected second page: %d", len(rest))
	}
	if rest[2].BidCount != 2 || rest[0].BidCount != 0 {
		t.Fatalf("bid counts %d %d", rest[2].BidCount, rest[0].BidCount)
	}
}

func TestFilterMaxPriceKeepsTradeTasks(t *testing.T) {
	env := newTestEnv(t)
	pricey := env.cashTask(t, "owner", "600")
	cheap := env.cashTask(t, "owner", "400")
	trade := env.tradeTask(t, "owner", "600 shillings worth of tutoring")

	tasks, err := env.Engine.ListTasks(env.Ctx, engine.ListTaskOptions{})
	if err != nil {
		t.Fatal(err)
	}
	got := engine.FilterTasks(tasks, engine.TaskFilter{MaxPrice: "500"})
	seen := map[string]bool{}
	for _, tv := range got {
		seen[tv.ID] = true
	}
	if seen[pricey.ID] || !seen[cheap.ID] || !seen[trade.ID] {
		t.Fatalf("unexpected filter result %v", seen)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	env := newTestEnv(t)
	base := engine.TaskCreateOptions{
		Title: "Title", Description: "Desc", Category: "tech",
		OfferType: domain.OfferCash, OfferAmount: "10", Deadline: "2030-01-01", ActorID: "owner",
	}
	cases := map[string]func(o *engine.TaskCreateOptions){
		"empty title":      func(o *engine.TaskCreateOptions) { o.Title = " " },
		"long title":       func(o *engine.TaskCreateOptions) { o.Title = strings.Repeat("x", 51) },
		"long description": func(o *engine.TaskCreateOptions) { o.Description = strings.Repeat("x", 201) },
		"bad category":     func(o *engine.TaskCreateOptions) { o.Category = "gardening" },
		"bad offer type":   func(o *engine.TaskCreateOptions) { o.OfferType = "barter" },
		"no cash amount":   func(o *engine.TaskCreateOptions) { o.OfferAmount = "" },
		"trade without deal": func(o *engine.TaskCreateOptions) {
			o.OfferType = domain.OfferTrade
		},
		"missing deadline": func(o *engine.TaskCreateOptions) { o.Deadline = "" },
		"past deadline":    func(o *engine.TaskCreateOptions) { o.Deadline = "2020-01-01" },
		"garbage deadline": func(o *engine.TaskCreateOptions) { o.Deadline = "next week" },
	}
	for name, mutate := range cases {
		opts := base
		mutate(&opts)
		_, err := env.Engine.CreateTask(env.Ctx, opts)
		var ve engine.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
	tasks, err := env.Engine.ListTasks(env.Ctx, engine.ListTaskOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 0 {
		t.Fatalf("invalid tasks were stored")
	}

	opts := base
	opts.Title = "<b>Bold</b>"
	opts.TradeDeal = "ignored"
	task, err := env.Engine.CreateTask(env.Ctx, opts)
	if err != nil {
		t.Fatal(err)
	}
	if task.Title != "<b>Bold</b>" {
		t.Fatalf("title not stored as typed: %q", task.Title)
	}
	if task.TradeDeal != nil || task.Status != domain.StatusOpen || task.AssignedTo != nil {
		t.Fatalf("unexpected new task %+v", task)
	}
}

func TestTaskTextStoredAsTyped(t *testing.T) {
	env := newTestEnv(t)
	title := "C++/Go tutor for Tom's & Ann's group project!!<ok>"
	if n := utf8.RuneCountInString(title); n != 50 {
		t.Fatalf("fixture title has %d runes", n)
	}
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title:       "  " + title + " ",
		Description: `Pair programming "basics" & <templates>`,
		Category:    "academic",
		OfferType:   domain.OfferTrade,
		TradeDeal:   "tutoring/mentoring",
		Deadline:    "2030-05-01",
		ActorID:     "owner",
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	view, err := env.Engine.GetTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if view.Title != title || utf8.RuneCountInString(view.Title) > 50 {
		t.Fatalf("stored title %q", view.Title)
	}
	if view.Offer != "tutoring/mentoring" {
		t.Fatalf("offer %q", view.Offer)
	}

	env.cashTask(t, "owner", "10")
	all, err := env.Engine.ListTasks(env.Ctx, engine.ListTaskOptions{})
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	for _, term := range []string{"tom's", "c++/go", "& ann", `"basics"`, "<templates>"} {
		got := engine.FilterTasks(all, engine.TaskFilter{SearchTerm: term})
		if len(got) != 1 || got[0].ID != task.ID {
			t.Fatalf("search %q matched %d tasks", term, len(got))
		}
	}

	b, err := env.Engine.SubmitBid(env.Ctx, engine.SubmitBidOptions{TaskID: task.ID, BidderID: "tutor", Amount: "10", Message: "I'll bring A/B notes"})
	if err != nil {
		t.Fatalf("submit bid: %v", err)
	}
	if b.Message != "I'll bring A/B notes" {
		t.Fatalf("bid message %q", b.Message)
	}
	m, err := env.Engine.SendMessage(env.Ctx, engine.SendMessageOptions{TaskID: task.ID, SenderID: "tutor", RecipientID: "owner", Text: " 5 < 6 & it's fine "})
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	thread, err := env.Engine.ListThread(env.Ctx, task.ID, "owner", "tutor")
	if err != nil {
		t.Fatalf("list thread: %v", err)
	}
	if m.Message != "5 < 6 & it's fine" || len(thread) != 1 || thread[0].Message != m.Message {
		t.Fatalf("message stored as %q, thread %+v", m.Message, thread)
	}
}

type failingChecker struct{ err error }

func (c failingChecker) Load(context.Context) (capability.Set, error) { return capability.Set{}, c.err }

func TestListTasksStoreFailureReturnsEmptySlice(t *testing.T) {
	assertFailure := func(t *testing.T, tasks []domain.TaskView, err error) {
		t.Helper()
		if tasks == nil || len(tasks) != 0 {
			t.Fatalf("expected empty non-nil slice, got %#v", tasks)
		}
		var se engine.StoreError
		if !errors.As(err, &se) {
			t.Fatalf("expected store error, got %v", err)
		}
		if se.Message != "Failed to fetch hustles data" {
			t.Fatalf("unexpected message %q", se.Message)
		}
	}

	t.Run("capability check fails", func(t *testing.T) {
		env := newTestEnv(t)
		env.cashTask(t, "owner", "10")
		env.Engine.Caps = failingChecker{err: errors.New("schema unreadable")}
		tasks, err := env.Engine.ListTasks(env.Ctx, engine.ListTaskOptions{})
		assertFailure(t, tasks, err)
	})

	t.Run("database closed", func(t *testing.T) {
		env := newTestEnv(t)
		env.cashTask(t, "owner", "10")
		env.Engine.Caps = capability.Static(capability.Full)
		if err := env.Engine.DB.Close(); err != nil {
			t.Fatalf("close db: %v", err)
		}
		tasks, err := env.Engine.ListTasks(env.Ctx, engine.ListTaskOptions{})
		assertFailure(t, tasks, err)
	})
}

func TestMarkThreadReadOnlyAffectsTriple(t *testing.T) {
	env := newTestEnv(t)
	t1 := env.cashTask(t, "owner", "10")
	t2 := env.cashTask(t, "owner", "10")
	send := func(task, from, to string) {
		t.Helper()
		if _, err := env.Engine.SendMessage(env.Ctx, engine.SendMessageOptions{TaskID: task, SenderID: from, RecipientID: to, Text: "hello"}); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	send(t1.ID, "a", "owner")
	send(t1.ID, "a", "owner")
	send(t1.ID, "b", "owner")
	send(t2.ID, "a", "owner")
	send(t1.ID, "owner", "a")

	n, err := env.Engine.MarkThreadRead(env.Ctx, "owner", "a", t1.ID)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows flipped, got %d", n)
	}
	n, err = env.Engine.MarkThreadRead(env.Ctx, "owner", "a", t1.ID)
	if err != nil || n != 0 {
		t.Fatalf("second mark: %d %v", n, err)
	}
	unread, err := env.Engine.UnreadCount(env.Ctx, "owner")
	if err != nil {
		t.Fatal(err)
	}
	if unread != 2 {
		t.Fatalf("other triples affected: unread=%d", unread)
	}
	unread, err = env.Engine.UnreadCount(env.Ctx, "a")
	if err != nil || unread != 1 {
		t.Fatalf("reverse direction affected: %d %v", unread, err)
	}

	thread, err := env.Engine.ListThread(env.Ctx, t1.ID, "owner", "a")
	if err != nil {
		t.Fatal(err)
	}
	if len(thread) != 3 || thread[2].SenderID != "owner" {
		t.Fatalf("unexpected thread %+v", thread)
	}
}

func TestSendMessageValidation(t *testing.T) {
	env := newTestEnv(t)
	task := env.cashTask(t, "owner", "10")
	var ve engine.ValidationError
	if _, err := env.Engine.SendMessage(env.Ctx, engine.SendMessageOptions{TaskID: task.ID, SenderID: "a", RecipientID: "owner", Text: "  "}); !errors.As(err, &ve) {
		t.Fatalf("empty message: %v", err)
	}
	if _, err := env.Engine.SendMessage(env.Ctx, engine.SendMessageOptions{TaskID: task.ID, SenderID: "a", RecipientID: "a", Text: "hi"}); !errors.As(err, &ve) {
		t.Fatalf("self message: %v", err)
	}
	if _, err := env.Engine.SendMessage(env.Ctx, engine.SendMessageOptions{TaskID: "nope", SenderID: "a", RecipientID: "owner", Text: "hi"}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("missing task: %v", err)
	}
}

func TestNotificationsProjection(t *testing.T) {
	env := newTestEnv(t)
	sender := uuid.NewString()
	if _, _, err := env.Engine.EnsureProfile(env.Ctx, sender, "Otieno", ""); err != nil {
		t.Fatal(err)
	}
	task := env.cashTask(t, "owner", "10")
	var sent []domain.ChatMessage
	for i := 0; i < 5; i++ {
		from := sender
		if i%2 == 1 {
			from = "ghost"
		}
		m, err := env.Engine.SendMessage(env.Ctx, engine.SendMessageOptions{TaskID: task.ID, SenderID: from, RecipientID: "owner", Text: "msg"})
		if err != nil {
			t.Fatal(err)
		}
		sent = append(sent, m)
	}
	if _, err := env.Engine.SendMessage(env.Ctx, engine.SendMessageOptions{TaskID: task.ID, SenderID: "owner", RecipientID: sender, Text: "reply"}); err != nil {
		t.Fatal(err)
	}

	page, err := env.Engine.Notifications(env.Ctx, "owner", engine.NotificationQuery{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0].ID != sent[4].ID || page[1].ID != sent[3].ID {
		t.Fatalf("unexpected first page %+v", page)
	}
	if page[0].Type != "message" || page[0].SenderName != "Otieno" || page[0].TaskTitle != "Fix my laptop" {
		t.Fatalf("unexpected projection %+v", page[0])
	}
	if page[1].SenderName != "Unknown User" {
		t.Fatalf("missing sender fallback: %q", page[1].SenderName)
	}
	rest, err := env.Engine.Notifications(env.Ctx, "owner", engine.NotificationQuery{Limit: 10, CursorCreatedAt: page[1].CreatedAt, CursorID: page[1].ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 3 || rest[2].ID != sent[0].ID {
		t.Fatalf("unexpected second page %+v", rest)
	}

	if err := env.Engine.MarkNotificationRead(env.Ctx, sender, sent[0].ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("non-recipient marked notification: %v", err)
	}
	if err := env.Engine.MarkNotificationRead(env.Ctx, "owner", sent[0].ID); err != nil {
		t.Fatal(err)
	}
	unread, err := env.Engine.Notifications(env.Ctx, "owner", engine.NotificationQuery{UnreadOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(unread) != 4 {
		t.Fatalf("expected 4 unread, got %d", len(unread))
	}
	n, err := env.Engine.MarkAllNotificationsRead(env.Ctx, "owner")
	if err != nil || n != 4 {
		t.Fatalf("mark all: %d %v", n, err)
	}
	count, err := env.Engine.UnreadCount(env.Ctx, "owner")
	if err != nil || count != 0 {
		t.Fatalf("unread after mark all: %d %v", count, err)
	}
	count, err = env.Engine.UnreadCount(env.Ctx, sender)
	if err != nil || count != 1 {
		t.Fatalf("other recipient affected: %d %v", count, err)
	}
}

func TestListConversations(t *testing.T) {
	env := newTestEnv(t)
	task := env.cashTask(t, "owner", "10")
	other := env.tradeTask(t, "owner", "notes")
	for _, m := range []engine.SendMessageOptions{
		{TaskID: task.ID, SenderID: "a", RecipientID: "owner", Text: "first"},
		{TaskID: task.ID, SenderID: "owner", RecipientID: "a", Text: "second"},
		{TaskID: task.ID, SenderID: "a", RecipientID: "owner", Text: "third"},
		{TaskID: other.ID, SenderID: "b", RecipientID: "owner", Text: "trade?"},
	} {
		if _, err := env.Engine.SendMessage(env.Ctx, m); err != nil {
			t.Fatal(err)
		}
	}
	convs, err := env.Engine.ListConversations(env.Ctx, "owner")
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(convs))
	}
	if convs[0].TaskID != other.ID || convs[0].CounterpartID != "b" || convs[0].Counterpart != "Unknown User" {
		t.Fatalf("unexpected newest conversation %+v", convs[0])
	}
	if convs[1].LastMessage != "third" || convs[1].Unread != 2 {
		t.Fatalf("unexpected conversation %+v", convs[1])
	}
}

func TestNotProvisionedDegrades(t *testing.T) {
	env := newTestEnvAt(t, migrate.VersionInit)
	task := env.cashTask(t, "owner", "10")

	_, err := env.Engine.SubmitBid(env.Ctx, engine.SubmitBidOptions{TaskID: task.ID, BidderID: "a", Amount: "10", Message: "hi"})
	var np engine.NotProvisionedError
	if !errors.As(err, &np) || np.Message != "The bidding system is not fully set up yet. Please try again later." {
		t.Fatalf("submit bid: %v", err)
	}
	list, err := env.Engine.ListBids(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("list bids should degrade, got %v", err)
	}
	if len(list.Bids) != 0 || list.Notice != "The bidding system is not set up yet." {
		t.Fatalf("unexpected bid list %+v", list)
	}
	if _, err := env.Engine.Assign(env.Ctx, task.ID, "owner", "a"); !errors.As(err, &np) {
		t.Fatalf("assign: %v", err)
	}
	tasks, err := env.Engine.ListTasks(env.Ctx, engine.ListTaskOptions{})
	if err != nil || len(tasks) != 1 || tasks[0].BidCount != 0 {
		t.Fatalf("list tasks: %v %+v", err, tasks)
	}
	caps, err := env.Engine.Capabilities(env.Ctx)
	if err != nil || caps.Bids || caps.Assignment {
		t.Fatalf("capabilities: %+v %v", caps, err)
	}
}

func TestBidsWithoutAssignmentColumn(t *testing.T) {
	env := newTestEnvAt(t, migrate.VersionBids)
	task := env.cashTask(t, "owner", "10")
	env.bid(t, task.ID, "a", "10")
	_, err := env.Engine.Assign(env.Ctx, task.ID, "owner", "a")
	var np engine.NotProvisionedError
	if !errors.As(err, &np) || np.Message != "The assignment feature is not fully set up yet. Please try again later." {
		t.Fatalf("assign: %v", err)
	}
	mine, err := env.Engine.ListUserTasks(env.Ctx, "owner")
	if err != nil || len(mine) != 1 {
		t.Fatalf("user tasks: %v %d", err, len(mine))
	}
}
