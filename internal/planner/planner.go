// Package planner holds the form state for one day and wires it to the
// signed-in identity and the autosave loop.
package planner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"timebox/internal/autosave"
	"timebox/internal/identity"
	"timebox/internal/model"
)

var (
	ErrSignedOut  = errors.New("sign in to edit")
	ErrLoading    = errors.New("plan is still loading")
	ErrOutOfRange = errors.New("out of range")
	ErrFutureDate = errors.New("cannot plan a future day")
)

// Settings control which hours the grid shows.
type Settings struct {
	StartHour int
	EndHour   int
}

func DefaultSettings() Settings {
	return Settings{StartHour: 5, EndHour: 23}
}

// Clamped keeps both hours within a day.
func (s Settings) Clamped() Settings {
	return Settings{StartHour: clampHour(s.StartHour), EndHour: clampHour(s.EndHour)}
}

func clampHour(h int) int {
	return min(max(h, 0), 23)
}

// Hours lists the grid rows. It is empty when the start is after the end.
func (s Settings) Hours() []int {
	s = s.Clamped()
	var out []int
	for h := s.StartHour; h <= s.EndHour; h++ {
		out = append(out, h)
	}
	return out
}

func (s Settings) Contains(hour int) bool {
	s = s.Clamped()
	return hour >= s.StartHour && hour <= s.EndHour
}

// IdentitySource is the part of identity.Provider a Session watches.
type IdentitySource interface {
	Current() *identity.Identity
	Subscribe(func(*identity.Identity)) (unsubscribe func())
}

// Syncer is the part of autosave.Syncer a Session drives.
type Syncer interface {
	Select(model.PlanKey)
	Clear()
	Changed()
	Loading() bool
	Flush(context.Context)
	Close(context.Context) error
}

type Option func(*Session)

func WithSettings(s Settings) Option {
	return func(x *Session) { x.settings = s.Clamped() }
}

// WithDate starts the session on the day containing t instead of today. A
// future day falls back to today; check it with CheckDate first.
func WithDate(t time.Time) Option {
	return func(x *Session) { x.date = model.Day(t) }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(x *Session) { x.now = now }
}

// Session is the form state of the planner. Its mutex guards only the plan
// fields; the syncer is never called while it is held, because the syncer
// calls back into Snapshot and Replace under its own lock.
type Session struct {
	ids      IdentitySource
	sync     Syncer
	now      func() time.Time
	settings Settings

	mu   sync.Mutex
	plan model.DayPlan
	date time.Time
	user string

	unsubscribe func()
}

// NewSession builds a session whose state is saved by the syncer returned
// from newSyncer. The session starts on today and follows ids.
func NewSession(ids IdentitySource, newSyncer func(autosave.State) Syncer, opts ...Option) *Session {
	s := &Session{
		ids:      ids,
		now:      time.Now,
		settings: DefaultSettings(),
		plan:     model.EmptyDayPlan(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.date.IsZero() || CheckDate(s.date, s.now()) != nil {
		s.date = model.Day(s.now())
	}
	s.sync = newSyncer(s)
	s.unsubscribe = ids.Subscribe(s.identityChanged)
	s.identityChanged(ids.Current())
	return s
}

// Snapshot implements autosave.State.
func (s *Session) Snapshot() model.DayPlan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plan.Clone()
}

// Replace implements autosave.State.
func (s *Session) Replace(p model.DayPlan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plan = p.Clone()
}

func (s *Session) identityChanged(id *identity.Identity) {
	s.mu.Lock()
	if id == nil {
		s.user = ""
		s.mu.Unlock()
		s.sync.Clear()
		return
	}
	s.user = id.UserID
	key := model.NewPlanKey(s.user, s.date)
	s.mu.Unlock()
	s.sync.Select(key)
}

// Plan returns a copy of the current form state.
func (s *Session) Plan() model.DayPlan { return s.Snapshot() }

func (s *Session) Date() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.date
}

func (s *Session) Settings() Settings { return s.settings }

// Loading is true while the selected day is being fetched.
func (s *Session) Loading() bool { return s.sync.Loading() }

// CheckDate rejects days after the one containing now.
func CheckDate(t, now time.Time) error {
	if model.Day(t).After(model.Day(now)) {
		return ErrFutureDate
	}
	return nil
}

// SelectDate switches to the day containing t.
func (s *Session) SelectDate(t time.Time) error {
	if err := CheckDate(t, s.now()); err != nil {
		return err
	}
	d := model.Day(t)
	s.mu.Lock()
	s.date = d
	user := s.user
	s.mu.Unlock()
	if user != "" {
		s.sync.Select(model.NewPlanKey(user, d))
	}
	return nil
}

// SetPriority replaces priority i (0-based).
func (s *Session) SetPriority(i int, v string) error {
	if i < 0 || i >= model.PriorityCount {
		return fmt.Errorf("priority %d: %w", i+1, ErrOutOfRange)
	}
	return s.edit(func(p *model.DayPlan) { p.TopPriorities[i] = v })
}

func (s *Session) SetBrainDump(v string) error {
	return s.edit(func(p *model.DayPlan) { p.BrainDump = v })
}

// SetTask replaces one half-hour cell. hour must be on the grid.
func (s *Session) SetTask(hour int, slot model.Slot, v string) error {
	if !s.settings.Contains(hour) {
		return fmt.Errorf("hour %d: %w", hour, ErrOutOfRange)
	}
	return s.edit(func(p *model.DayPlan) { *p = p.WithTask(hour, slot, v) })
}

func (s *Session) edit(fn func(*model.DayPlan)) error {
	if s.sync.Loading() {
		return ErrLoading
	}
	s.mu.Lock()
	if s.user == "" {
		s.mu.Unlock()
		return ErrSignedOut
	}
	fn(&s.plan)
	s.mu.Unlock()
	s.sync.Changed()
	return nil
}

// Save writes pending edits now instead of after the quiet period.
func (s *Session) Save(ctx context.Context) { s.sync.Flush(ctx) }

// Close saves pending edits, stops following the identity and shuts the
// syncer down.
func (s *Session) Close(ctx context.Context) error {
	s.unsubscribe()
	return s.sync.Close(ctx)
}
