// Package identity tracks who is signed in and tells observers when that
// changes.
package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var ErrNotSignedIn = errors.New("not signed in")

// Identity is the signed-in user.
type Identity struct {
	UserID string
	Name   string
	Email  string
}

// Credentials are what a session needs to survive a restart.
type Credentials struct {
	Identity
	AccessToken  string
	RefreshToken string
}

// Authenticator talks to the identity service.
type Authenticator interface {
	Register(ctx context.Context, email, password, name string) (Credentials, error)
	SignIn(ctx context.Context, email, password string) (Credentials, error)
	// Resume exchanges stored credentials for fresh ones.
	Resume(ctx context.Context, c Credentials) (Credentials, error)
	SignOut(ctx context.Context) error
}

// Keyring persists credentials between runs. Load returns nil, nil when
// nothing is stored.
type Keyring interface {
	Load() (*Credentials, error)
	Save(Credentials) error
	Clear() error
}

type Provider struct {
	auth Authenticator
	keys Keyring
	log  *zap.Logger

	mu        sync.Mutex
	current   *Identity
	loading   bool
	observers map[int]func(*Identity)
	nextID    int
}

func NewProvider(auth Authenticator, keys Keyring, log *zap.Logger) *Provider {
	if log == nil {
		log = zap.NewNop()
	}
	return &Provider{auth: auth, keys: keys, log: log, observers: map[int]func(*Identity){}}
}

// Current returns the signed-in identity or nil.
func (p *Provider) Current() *Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil
	}
	id := *p.current
	return &id
}

// Loading is true while a sign-in or restore is in progress.
func (p *Provider) Loading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loading
}

// Subscribe registers fn for identity changes. fn is called outside the
// provider's lock. The returned func deregisters it.
func (p *Provider) Subscribe(fn func(*Identity)) (unsubscribe func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.observers[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.observers, id)
	}
}

// Restore resumes the stored session, if any. A stored session the server no
// longer accepts is discarded.
func (p *Provider) Restore(ctx context.Context) error {
	stored, err := p.keys.Load()
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	if stored == nil {
		return nil
	}
	p.setLoading(true)
	c, err := p.auth.Resume(ctx, *stored)
	if err != nil {
		p.log.Info("stored session rejected", zap.Error(err))
		if cerr := p.keys.Clear(); cerr != nil {
			p.log.Warn("clear credentials", zap.Error(cerr))
		}
		p.set(nil)
		return fmt.Errorf("resume session: %w", err)
	}
	return p.signedIn(c)
}

func (p *Provider) Register(ctx context.Context, email, password, name string) error {
	p.setLoading(true)
	c, err := p.auth.Register(ctx, email, password, name)
	if err != nil {
		p.setLoading(false)
		return err
	}
	return p.signedIn(c)
}

func (p *Provider) SignIn(ctx context.Context, email, password string) error {
	p.setLoading(true)
	c, err := p.auth.SignIn(ctx, email, password)
	if err != nil {
		p.setLoading(false)
		return err
	}
	return p.signedIn(c)
}

// SignOut always forgets the local session, even when the server call fails.
func (p *Provider) SignOut(ctx context.Context) error {
	if p.Current() == nil {
		return ErrNotSignedIn
	}
	err := p.auth.SignOut(ctx)
	if err != nil {
		p.log.Warn("server sign-out", zap.Error(err))
	}
	if cerr := p.keys.Clear(); cerr != nil {
		p.log.Warn("clear credentials", zap.Error(cerr))
	}
	p.set(nil)
	return err
}

// Refreshed records credentials rotated behind the provider's back, e.g. by
// a client renewing an expired access token.
func (p *Provider) Refreshed(c Credentials) {
	if err := p.keys.Save(c); err != nil {
		p.log.Warn("save refreshed credentials", zap.Error(err))
	}
}

func (p *Provider) signedIn(c Credentials) error {
	err := p.keys.Save(c)
	if err != nil {
		p.log.Warn("save credentials", zap.Error(err))
	}
	id := c.Identity
	p.set(&id)
	return nil
}

func (p *Provider) setLoading(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loading = v
}

// set replaces the identity, clears loading and notifies observers.
func (p *Provider) set(id *Identity) {
	p.mu.Lock()
	p.current = id
	p.loading = false
	fns := make([]func(*Identity), 0, len(p.observers))
	for _, fn := range p.observers {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		if id == nil {
			fn(nil)
			continue
		}
		cp := *id
		fn(&cp)
	}
}
