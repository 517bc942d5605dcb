package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"campushustle/internal/domain"
	"campushustle/internal/events"
	"campushustle/internal/repo"
)

const (
	maxTitleLen       = 50
	maxDescriptionLen = 200
	enrichWorkers     = 8
	defaultTrustScore = 3.0

	fallbackPosterName   = "Community Member"
	anonymousName        = "Anonymous User"
	fallbackOffer        = "Trade offer"
	msgTasksLoadFailed   = "Failed to fetch hustles data"
	msgTaskCreateFailed  = "Failed to post hustle. Please try again."
	msgDeadlineInPast    = "Deadline must be in the future"
	msgDeadlineInvalid   = "Please choose a valid deadline"
	msgAmountInvalid     = "Please enter a valid cash amount"
	msgTradeDealRequired = "Please describe what you offer in trade"
	msgCategoryInvalid   = "Please choose a valid category"
	msgOfferTypeInvalid  = "Offer type must be cash or trade"
	msgTitleRequired     = "Please enter a title"
	msgTitleTooLong      = "Title must be 50 characters or less"
	msgDescRequired      = "Please enter a description"
	msgDescTooLong       = "Description must be 200 characters or less"
)

// TaskCreateOptions are parameters for posting a task.
type TaskCreateOptions struct {
	Title       string
	Description string
	Category    string
	OfferType   string
	OfferAmount string
	TradeDeal   string
	Deadline    string
	ActorID     string
}

var deadlineLayouts = []string{time.RFC3339, TimeFormat, "2006-01-02T15:04", "2006-01-02"}

func parseDeadline(s string) (time.Time, error) {
	for _, layout := range deadlineLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised deadline %q", s)
}

func (e Engine) validateTask(opts TaskCreateOptions) (domain.Task, error) {
	title := strings.TrimSpace(opts.Title)
	desc := strings.TrimSpace(opts.Description)
	switch {
	case title == "":
		return domain.Task{}, invalid("title", msgTitleRequired)
	case runeLen(title) > maxTitleLen:
		return domain.Task{}, invalid("title", msgTitleTooLong)
	case desc == "":
		return domain.Task{}, invalid("description", msgDescRequired)
	case runeLen(desc) > maxDescriptionLen:
		return domain.Task{}, invalid("description", msgDescTooLong)
	}
	if !slices.Contains(e.cfg().Marketplace.Categories, opts.Category) {
		return domain.Task{}, invalid("category", msgCategoryInvalid)
	}
	t := domain.Task{
		UserID:      opts.ActorID,
		Title:       title,
		Description: desc,
		Category:    opts.Category,
		OfferType:   opts.OfferType,
		Status:      domain.StatusOpen,
	}
	switch opts.OfferType {
	case domain.OfferCash:
		amount, err := strconv.Atoi(strings.TrimSpace(opts.OfferAmount))
		if err != nil || amount <= 0 {
			return domain.Task{}, invalid("offer_amount", msgAmountInvalid)
		}
		v := strconv.Itoa(amount)
		t.OfferAmount = &v
	case domain.OfferTrade:
		deal := strings.TrimSpace(opts.TradeDeal)
		if deal == "" {
			return domain.Task{}, invalid("trade_deal", msgTradeDealRequired)
		}
		t.TradeDeal = &deal
	default:
		return domain.Task{}, invalid("offer_type", msgOfferTypeInvalid)
	}
	if strings.TrimSpace(opts.Deadline) == "" {
		return domain.Task{}, invalid("deadline", msgDeadlineInvalid)
	}
	deadline, err := parseDeadline(opts.Deadline)
	if err != nil {
		return domain.Task{}, invalid("deadline", msgDeadlineInvalid)
	}
	if !deadline.After(e.now()) {
		return domain.Task{}, invalid("deadline", msgDeadlineInPast)
	}
	t.Deadline = deadline.UTC().Format(TimeFormat)
	return t, nil
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if opts.ActorID == "" {
		return domain.Task{}, errors.New("actor_id required")
	}
	t, err := e.validateTask(opts)
	if err != nil {
		return domain.Task{}, err
	}
	r, _, err := e.store(ctx)
	if err != nil {
		return domain.Task{}, err
	}
	now := e.stamp()
	t.ID = newID()
	t.CreatedAt = now
	t.UpdatedAt = now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := r.InsertTask(ctx, tx, t); err != nil {
		e.log().Logf("[ERROR] insert task for %s: %v", opts.ActorID, err)
		return domain.Task{}, StoreError{Op: "create task", Message: msgTaskCreateFailed, Err: err}
	}
	evt, err := e.Events.Append(ctx, tx, events.TaskCreated, "task", t.ID, opts.ActorID, events.EventPayload{
		"title": t.Title, "category": t.Category, "offer_type": t.OfferType,
	})
	if err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	e.publish(evt)
	return t, nil
}

// GetTask returns one task with its derived view fields.
func (e Engine) GetTask(ctx context.Context, id string) (domain.TaskView, error) {
	r, set, err := e.store(ctx)
	if err != nil {
		return domain.TaskView{}, err
	}
	t, err := r.GetTask(ctx, id)
	if err != nil {
		return domain.TaskView{}, err
	}
	views := e.enrich(ctx, r, set.Bids, []domain.Task{t})
	return views[0], nil
}

// ListTaskOptions page through tasks newest first.
type ListTaskOptions struct {
	UserID          string
	Involving       string
	Status          string
	Category        string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

// ListTasks returns tasks joined with poster, bid count and offer string.
// A store failure yields an empty, non-nil slice together with a StoreError.
func (e Engine) ListTasks(ctx context.Context, opts ListTaskOptions) ([]domain.TaskView, error) {
	r, set, err := e.store(ctx)
	if err != nil {
		e.log().Logf("[ERROR] list tasks: %v", err)
		return []domain.TaskView{}, StoreError{Op: "list tasks", Message: msgTasksLoadFailed, Err: err}
	}
	tasks, err := r.ListTasks(ctx, repo.TaskFilters{
		UserID:          opts.UserID,
		Involving:       opts.Involving,
		Status:          opts.Status,
		Category:        opts.Category,
		Limit:           opts.Limit,
		CursorCreatedAt: opts.CursorCreatedAt,
		CursorID:        opts.CursorID,
	})
	if err != nil {
		e.log().Logf("[ERROR] list tasks: %v", err)
		return []domain.TaskView{}, StoreError{Op: "list tasks", Message: msgTasksLoadFailed, Err: err}
	}
	return e.enrich(ctx, r, set.Bids, tasks), nil
}

// ListUserTasks returns the tasks a user posted or was assigned.
func (e Engine) ListUserTasks(ctx context.Context, userID string) ([]domain.TaskView, error) {
	return e.ListTasks(ctx, ListTaskOptions{Involving: userID})
}

func (e Engine) enrich(ctx context.Context, r repo.Repo, bidsEnabled bool, tasks []domain.Task) []domain.TaskView {
	counts := map[string]int{}
	if bidsEnabled {
		c, err := r.CountBidsByTask(ctx)
		if err != nil {
			e.log().Logf("[WARN] count bids: %v", err)
		} else {
			counts = c
		}
	}
	posters := e.loadPosters(ctx, r, tasks)
	views := make([]domain.TaskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, domain.TaskView{
			Task:     t,
			Offer:    e.offerString(t),
			BidCount: counts[t.ID],
			Poster:   posters[t.UserID],
		})
	}
	return views
}

// loadPosters fetches each distinct poster profile on a bounded pool. Failed
// or skipped lookups fall back to a placeholder poster.
func (e Engine) loadPosters(ctx context.Context, r repo.Repo, tasks []domain.Task) map[string]domain.PosterInfo {
	res := map[string]domain.PosterInfo{}
	var mu sync.Mutex
	found := map[string]domain.PosterInfo{}
	p := pool.New().WithMaxGoroutines(enrichWorkers)
	for _, t := range tasks {
		id := t.UserID
		if _, ok := res[id]; ok {
			continue
		}
		res[id] = domain.PosterInfo{ID: id, Name: fallbackPosterName, TrustScore: defaultTrustScore}
		if !isProfileID(id) {
			continue
		}
		p.Go(func() {
			prof, err := r.GetProfile(ctx, id)
			if err != nil {
				if !errors.Is(err, repo.ErrNotFound) {
					e.log().Logf("[WARN] load profile %s: %v", id, err)
				}
				return
			}
			info := domain.PosterInfo{ID: id, Name: prof.Name, Avatar: prof.ProfilePicURL, TrustScore: prof.TrustScore}
			if info.Name == "" {
				info.Name = anonymousName
			}
			if info.TrustScore == 0 {
				info.TrustScore = defaultTrustScore
			}
			mu.Lock()
			found[id] = info
			mu.Unlock()
		})
	}
	p.Wait()
	for id, info := range found {
		res[id] = info
	}
	return res
}

// isProfileID reports whether id looks like an identity-issued UUID.
func isProfileID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

func (e Engine) offerString(t domain.Task) string {
	if t.OfferType == domain.OfferCash && t.OfferAmount != nil && *t.OfferAmount != "" {
		return e.cfg().Marketplace.Currency + " " + *t.OfferAmount
	}
	if t.TradeDeal != nil && *t.TradeDeal != "" {
		return *t.TradeDeal
	}
	return fallbackOffer
}
