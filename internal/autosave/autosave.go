// Package autosave keeps a remote copy of one day's plan in step with local
// edits.
//
// A Syncer tracks the active key and two flags: loading (a read for the key
// is in flight) and loaded (the read for the key completed). Changes are
// collapsed into one write after a quiet period, and no write is ever issued
// for a key whose read has not completed, so transient empty state can never
// overwrite what the server holds. Remote errors are logged and dropped.
package autosave

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"timebox/internal/metrics"
	"timebox/internal/model"
)

const (
	DefaultDelay   = time.Second
	DefaultTimeout = 10 * time.Second
)

// Remote is the keyed document store.
type Remote interface {
	// Read returns found=false and no error when the key has no record.
	Read(ctx context.Context, key model.PlanKey) (plan model.DayPlan, found bool, err error)
	// Write merges patch into the record for key, creating it if needed.
	Write(ctx context.Context, key model.PlanKey, patch model.PlanPatch) error
}

// State is the local form state. The Syncer may call it while holding its
// own lock, so implementations must not call back into the Syncer.
type State interface {
	Snapshot() model.DayPlan
	Replace(model.DayPlan)
}

type Option func(*Syncer)

// WithDelay sets the quiet period before a write.
func WithDelay(d time.Duration) Option {
	return func(s *Syncer) { s.delay = d }
}

// WithTimeout bounds every remote call.
func WithTimeout(d time.Duration) Option {
	return func(s *Syncer) { s.timeout = d }
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Syncer) { s.log = log }
}

func WithMetrics(m *metrics.Autosave) Option {
	return func(s *Syncer) { s.metrics = m }
}

type Syncer struct {
	remote  Remote
	state   State
	delay   time.Duration
	timeout time.Duration
	log     *zap.Logger
	metrics *metrics.Autosave

	mu      sync.Mutex
	key     model.PlanKey
	gen     uint64 // bumped whenever the key is replaced or cleared
	loading bool
	loaded  bool
	timer   *time.Timer
	seq     uint64 // identifies the live timer
	pending bool
	closed  bool
	calls   sync.WaitGroup
}

func New(remote Remote, state State, opts ...Option) *Syncer {
	s := &Syncer{
		remote:  remote,
		state:   state,
		delay:   DefaultDelay,
		timeout: DefaultTimeout,
		log:     zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Select makes key active and loads it. Any pending write for the previous
// key is abandoned; a read still in flight for it is ignored when it lands.
// Selecting the active key again while it is loading or loaded does nothing.
func (s *Syncer) Select(key model.PlanKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || key.IsZero() {
		return
	}
	if key.Equal(s.key) && (s.loading || s.loaded) {
		return
	}

	s.cancelTimer()
	s.gen++
	s.key = key
	s.loading = true
	s.loaded = false

	s.calls.Add(1)
	go s.load(s.gen, key)
}

func (s *Syncer) load(gen uint64, key model.PlanKey) {
	defer s.calls.Done()
	log := s.log.With(zap.String("key", key.String()))

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	plan, found, err := s.remote.Read(ctx, key)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		s.metrics.Load("stale")
		log.Debug("dropping superseded load")
		return
	}
	s.loading = false

	if err != nil {
		// keep writes off for this key; never show the previous day's data
		s.metrics.Load("error")
		log.Warn("load plan", zap.Error(err))
		s.state.Replace(model.EmptyDayPlan())
		return
	}
	if !found {
		s.metrics.Load("absent")
		plan = model.EmptyDayPlan()
	} else {
		s.metrics.Load("found")
	}
	s.state.Replace(plan)
	s.loaded = true
	log.Debug("plan loaded", zap.Bool("found", found))
}

// Clear drops the active key, abandons any pending write and resets the
// local state to the empty plan. Writes stay off until the next Select.
func (s *Syncer) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelTimer()
	s.gen++
	s.key = model.PlanKey{}
	s.loading = false
	s.loaded = false
	s.state.Replace(model.EmptyDayPlan())
}

// Changed reports a local edit. It (re)starts the quiet period, or is
// dropped when the active key has not finished loading.
func (s *Syncer) Changed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.key.IsZero() || s.loading || !s.loaded {
		s.metrics.Suppress()
		return
	}
	if s.pending {
		s.metrics.Debounce()
	}
	s.cancelTimer()
	s.pending = true
	seq := s.seq
	s.timer = time.AfterFunc(s.delay, func() { s.fire(seq) })
}

// cancelTimer must be called with mu held. Bumping seq also defuses a timer
// that already fired and is waiting on mu.
func (s *Syncer) cancelTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.seq++
	s.pending = false
}

func (s *Syncer) fire(seq uint64) {
	s.mu.Lock()
	if seq != s.seq || s.closed {
		s.mu.Unlock()
		return
	}
	key, patch, ok := s.takePending()
	s.mu.Unlock()
	if ok {
		s.write(context.Background(), key, patch)
	}
}

// takePending must be called with mu held. On success the caller owns one
// count on s.calls and must call write.
func (s *Syncer) takePending() (model.PlanKey, model.PlanPatch, bool) {
	if s.closed || !s.pending || s.loading || !s.loaded {
		return model.PlanKey{}, model.PlanPatch{}, false
	}
	s.cancelTimer()
	s.calls.Add(1)
	// the whole form goes out every time
	return s.key, s.state.Snapshot().Patch(), true
}

func (s *Syncer) write(ctx context.Context, key model.PlanKey, patch model.PlanPatch) {
	defer s.calls.Done()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.remote.Write(ctx, key, patch); err != nil {
		s.metrics.Write("error")
		s.log.Warn("save plan", zap.String("key", key.String()), zap.Error(err))
		return
	}
	s.metrics.Write("ok")
	s.log.Debug("plan saved", zap.String("key", key.String()))
}

// Flush issues the pending write now, if there is one, and waits for it.
func (s *Syncer) Flush(ctx context.Context) {
	s.mu.Lock()
	key, patch, ok := s.takePending()
	s.mu.Unlock()
	if ok {
		s.write(ctx, key, patch)
	}
}

// Close flushes, stops accepting work and waits for in-flight calls or ctx.
func (s *Syncer) Close(ctx context.Context) error {
	s.Flush(ctx)

	s.mu.Lock()
	s.closed = true
	s.cancelTimer()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.calls.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Key returns the active key, zero when none.
func (s *Syncer) Key() model.PlanKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key
}

// Loading reports whether a read for the active key is in flight.
func (s *Syncer) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Ready reports whether the active key finished loading, i.e. whether edits
// will be saved.
func (s *Syncer) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}
