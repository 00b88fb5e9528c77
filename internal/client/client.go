// Package client is the gRPC client for PlannerService. It serves both as the
// autosave remote and as the identity authenticator.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"timebox/internal/autosave"
	"timebox/internal/identity"
	"timebox/internal/model"
	"timebox/internal/rpc"
)

var ErrWrongUser = errors.New("key belongs to another user")

type Option func(*Client)

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithDialOptions appends options used when dialing, e.g. a bufconn dialer.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(c *Client) { c.dial = append(c.dial, opts...) }
}

// OnRefresh is called with the new credentials whenever the client renews
// its access token on its own.
func OnRefresh(fn func(identity.Credentials)) Option {
	return func(c *Client) { c.onRefresh = fn }
}

// WithBreaker overrides the circuit breaker settings used for plan calls.
func WithBreaker(st gobreaker.Settings) Option {
	return func(c *Client) { c.breakerSettings = st }
}

type Client struct {
	conn            *grpc.ClientConn
	rpc             *rpc.PlannerClient
	log             *zap.Logger
	dial            []grpc.DialOption
	onRefresh       func(identity.Credentials)
	breakerSettings gobreaker.Settings
	breaker         *gobreaker.CircuitBreaker

	mu    sync.Mutex
	creds identity.Credentials

	// renewMu serializes refreshes; the server revokes a session whose
	// refresh token is presented twice.
	renewMu sync.Mutex
}

var (
	_ autosave.Remote        = (*Client)(nil)
	_ identity.Authenticator = (*Client)(nil)
)

// DefaultBreaker trips after five consecutive failures and probes again after
// thirty seconds.
func DefaultBreaker() gobreaker.Settings {
	return gobreaker.Settings{
		Name:        "planner",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
}

// Dial connects to the server at target (e.g. "localhost:50051").
func Dial(target string, opts ...Option) (*Client, error) {
	c := &Client{log: zap.NewNop(), breakerSettings: DefaultBreaker()}
	for _, o := range opts {
		o(c)
	}

	st := c.breakerSettings
	st.IsSuccessful = countsAsSuccess
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		c.log.Info("circuit breaker state change",
			zap.String("name", name), zap.Stringer("from", from), zap.Stringer("to", to))
	}
	c.breaker = gobreaker.NewCircuitBreaker(st)

	dial := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, rpc.DialOptions()...)
	conn, err := grpc.NewClient(target, append(dial, c.dial...)...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	c.conn = conn
	c.rpc = rpc.NewPlannerClient(conn)
	return c, nil
}

func (c *Client) Close() error { return c.conn.Close() }

// countsAsSuccess keeps caller mistakes from tripping the breaker; only
// transport and server failures count.
func countsAsSuccess(err error) bool {
	switch status.Code(err) {
	case codes.OK, codes.InvalidArgument, codes.Unauthenticated, codes.PermissionDenied,
		codes.NotFound, codes.AlreadyExists, codes.ResourceExhausted:
		return true
	}
	return false
}

// Credentials returns the current session tokens.
func (c *Client) Credentials() identity.Credentials {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.creds
}

// SetCredentials installs a session without talking to the server.
func (c *Client) SetCredentials(cr identity.Credentials) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds = cr
}

func (c *Client) Register(ctx context.Context, email, password, name string) (identity.Credentials, error) {
	s, err := c.rpc.Register(ctx, &rpc.RegisterRequest{Email: email, Password: password, Name: name})
	if err != nil {
		return identity.Credentials{}, err
	}
	cr := fromSession(s)
	cr.Email = email
	c.SetCredentials(cr)
	return cr, nil
}

func (c *Client) SignIn(ctx context.Context, email, password string) (identity.Credentials, error) {
	s, err := c.rpc.Login(ctx, &rpc.LoginRequest{Email: email, Password: password})
	if err != nil {
		return identity.Credentials{}, err
	}
	cr := fromSession(s)
	cr.Email = email
	c.SetCredentials(cr)
	return cr, nil
}

// Resume rotates the refresh token in cr and adopts the new session.
func (c *Client) Resume(ctx context.Context, cr identity.Credentials) (identity.Credentials, error) {
	if cr.RefreshToken == "" {
		return identity.Credentials{}, identity.ErrNotSignedIn
	}
	s, err := c.rpc.Refresh(ctx, &rpc.RefreshRequest{RefreshToken: cr.RefreshToken})
	if err != nil {
		return identity.Credentials{}, err
	}
	next := fromSession(s)
	next.Email = cr.Email
	c.SetCredentials(next)
	return next, nil
}

func (c *Client) SignOut(ctx context.Context) error {
	cr := c.Credentials()
	c.SetCredentials(identity.Credentials{})
	if cr.AccessToken == "" {
		return nil
	}
	return c.rpc.Logout(withToken(ctx, cr.AccessToken))
}

// Read loads the plan for key. Keys of other users are refused locally; the
// server would answer with the caller's own plan anyway.
func (c *Client) Read(ctx context.Context, key model.PlanKey) (model.DayPlan, bool, error) {
	if err := c.own(key); err != nil {
		return model.DayPlan{}, false, err
	}
	var resp *rpc.GetDayPlanResponse
	err := c.call(ctx, func(ctx context.Context) error {
		var err error
		resp, err = c.rpc.GetDayPlan(ctx, &rpc.GetDayPlanRequest{Date: model.FormatDate(key.Date)})
		return err
	})
	if err != nil {
		return model.DayPlan{}, false, err
	}
	return resp.Plan, resp.Found, nil
}

// Write merges patch into the plan for key.
func (c *Client) Write(ctx context.Context, key model.PlanKey, patch model.PlanPatch) error {
	if err := c.own(key); err != nil {
		return err
	}
	return c.call(ctx, func(ctx context.Context) error {
		return c.rpc.SaveDayPlan(ctx, &rpc.SaveDayPlanRequest{Date: model.FormatDate(key.Date), Patch: patch})
	})
}

func (c *Client) own(key model.PlanKey) error {
	cr := c.Credentials()
	if cr.AccessToken == "" {
		return identity.ErrNotSignedIn
	}
	if key.UserID != cr.UserID {
		return ErrWrongUser
	}
	return nil
}

// call runs fn through the breaker with the bearer token attached. An
// expired access token is renewed once with the refresh token.
func (c *Client) call(ctx context.Context, fn func(context.Context) error) error {
	_, err := c.breaker.Execute(func() (any, error) {
		tok := c.Credentials().AccessToken
		err := fn(withToken(ctx, tok))
		if status.Code(err) != codes.Unauthenticated {
			return nil, err
		}
		if rerr := c.renew(ctx, tok); rerr != nil {
			c.log.Debug("token renewal failed", zap.Error(rerr))
			return nil, err
		}
		return nil, fn(withToken(ctx, c.Credentials().AccessToken))
	})
	return err
}

// renew refreshes the session unless another call already replaced the
// stale access token while this one waited.
func (c *Client) renew(ctx context.Context, stale string) error {
	c.renewMu.Lock()
	defer c.renewMu.Unlock()
	cur := c.Credentials()
	if cur.AccessToken != stale {
		if cur.AccessToken == "" {
			return identity.ErrNotSignedIn
		}
		return nil
	}
	cr, err := c.Resume(ctx, cur)
	if err != nil {
		return err
	}
	if c.onRefresh != nil {
		c.onRefresh(cr)
	}
	return nil
}

func withToken(ctx context.Context, tok string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+tok)
}

func fromSession(s *rpc.Session) identity.Credentials {
	return identity.Credentials{
		Identity:     identity.Identity{UserID: s.UserID, Name: s.Name},
		AccessToken:  s.Token,
		RefreshToken: s.RefreshToken,
	}
}
