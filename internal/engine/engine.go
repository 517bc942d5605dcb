package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/google/uuid"

	"campushustle/internal/capability"
	"campushustle/internal/config"
	"campushustle/internal/domain"
	"campushustle/internal/events"
	"campushustle/internal/payment"
	"campushustle/internal/ratelimit"
	"campushustle/internal/repo"
	"campushustle/internal/storage"
)

// TimeFormat is used for every stored timestamp so that string order equals
// time order.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Events  events.Writer
	Bus     events.Publisher
	Caps    capability.Checker
	Config  *config.Config
	Storage storage.Storage
	Gateway payment.Gateway
	Limits  Limits
	Logger  lgr.L
	Now     func() time.Time
}

// Limits throttle profile edits per user.
type Limits struct {
	ProfileUpdates *ratelimit.Limiter
	AvatarUploads  *ratelimit.Limiter
}

func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:      db,
		Repo:    repo.New(db),
		Events:  events.Writer{DB: db},
		Caps:    capability.NewProbe(db),
		Config:  cfg,
		Gateway: payment.SimulatedGateway{},
		Limits: Limits{
			ProfileUpdates: ratelimit.New(cfg.RateLimits.ProfileUpdates.Max, cfg.RateLimits.ProfileUpdates.Window()),
			AvatarUploads:  ratelimit.New(cfg.RateLimits.AvatarUploads.Max, cfg.RateLimits.AvatarUploads.Window()),
		},
		Logger: lgr.NoOp,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(TimeFormat)
}

func (e Engine) log() lgr.L {
	if e.Logger == nil {
		return lgr.NoOp
	}
	return e.Logger
}

func (e Engine) cfg() *config.Config {
	if e.Config == nil {
		return config.Default()
	}
	return e.Config
}

// store returns a repo bound to the features the schema provides.
func (e Engine) store(ctx context.Context) (repo.Repo, capability.Set, error) {
	set := capability.Full
	if e.Caps != nil {
		var err error
		set, err = e.Caps.Load(ctx)
		if err != nil {
			return repo.Repo{}, capability.Set{}, fmt.Errorf("load capabilities: %w", err)
		}
	}
	r := e.Repo
	if r.DB == nil {
		r.DB = e.DB
	}
	r.Schema = set
	return r, set, nil
}

// Capabilities reports which optional features the store supports.
func (e Engine) Capabilities(ctx context.Context) (capability.Set, error) {
	_, set, err := e.store(ctx)
	return set, err
}

func (e Engine) publish(evts ...domain.Event) {
	if e.Bus == nil {
		return
	}
	for _, evt := range evts {
		e.Bus.Publish(evt)
	}
}

func newID() string {
	return uuid.NewString()
}

// EventLog returns event log entries, newest first.
func (e Engine) EventLog(ctx context.Context, f repo.EventFilters) ([]domain.Event, error) {
	r, _, err := e.store(ctx)
	if err != nil {
		return nil, err
	}
	return r.LatestEvents(ctx, f)
}
