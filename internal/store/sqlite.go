package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"timebox/internal/model"
)

const liteSchema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	name          TEXT NOT NULL,
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS refresh_tokens (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL REFERENCES users(id),
	token_hash  TEXT NOT NULL UNIQUE,
	expires_at  INTEGER NOT NULL,
	revoked     INTEGER NOT NULL DEFAULT 0,
	replaced_by TEXT,
	created_at  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS day_plans (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	plan_date       TEXT NOT NULL,
	top_priorities  TEXT NOT NULL,
	brain_dump      TEXT NOT NULL,
	time_slot_tasks TEXT NOT NULL,
	created_at      INTEGER NOT NULL,
	updated_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS day_plans_user_date ON day_plans (user_id, plan_date);
`

// Lite is the embedded SQLite backend used for local runs and tests.
type Lite struct {
	db  *sql.DB
	now func() time.Time
}

// OpenLite opens dsn (a path or ":memory:") and applies the schema.
func OpenLite(ctx context.Context, dsn string) (*Lite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a :memory: database lives in one connection
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite pragma: %w", err)
	}
	if _, err := db.ExecContext(ctx, liteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &Lite{db: db, now: time.Now}, nil
}

func (l *Lite) Close() { l.db.Close() }

func liteNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (l *Lite) CreateUser(ctx context.Context, u *model.User) error {
	now := l.now().Unix()
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, name, created_at, updated_at) VALUES (?,?,?,?,?,?)`,
		u.ID, u.Email, u.PasswordHash, u.Name, now, now,
	)
	return err
}

func (l *Lite) UserByEmail(ctx context.Context, email string) (*model.User, error) {
	return l.userWhere(ctx, `email = ?`, email)
}

func (l *Lite) UserByID(ctx context.Context, id string) (*model.User, error) {
	return l.userWhere(ctx, `id = ?`, id)
}

func (l *Lite) userWhere(ctx context.Context, cond string, arg any) (*model.User, error) {
	u := &model.User{}
	var created, updated int64
	err := l.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, name, created_at, updated_at FROM users WHERE `+cond, arg,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &created, &updated)
	if err != nil {
		return nil, liteNotFound(err)
	}
	u.CreatedAt, u.UpdatedAt = time.Unix(created, 0), time.Unix(updated, 0)
	return u, nil
}

func (l *Lite) CreateRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (string, error) {
	id := uuid.New().String()
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at) VALUES (?,?,?,?,?)`,
		id, userID, tokenHash, expiresAt.Unix(), l.now().Unix(),
	)
	return id, err
}

func (l *Lite) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	rt := &RefreshToken{}
	var expires, created int64
	err := l.db.QueryRowContext(ctx,
		`SELECT id, user_id, token_hash, expires_at, revoked, replaced_by, created_at
		 FROM refresh_tokens WHERE token_hash = ?`, tokenHash,
	).Scan(&rt.ID, &rt.UserID, &rt.TokenHash, &expires, &rt.Revoked, &rt.ReplacedBy, &created)
	if err != nil {
		return nil, liteNotFound(err)
	}
	rt.ExpiresAt, rt.CreatedAt = time.Unix(expires, 0), time.Unix(created, 0)
	return rt, nil
}

func (l *Lite) RotateRefreshToken(ctx context.Context, oldID, newID, userID, newHash string, newExpiry time.Time) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = 1, replaced_by = ? WHERE id = ? AND revoked = 0`,
		newID, oldID,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrNotFound
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at) VALUES (?,?,?,?,?)`,
		newID, userID, newHash, newExpiry.Unix(), l.now().Unix(),
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (l *Lite) RevokeAllRefreshTokens(ctx context.Context, userID string) error {
	_, err := l.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = 1 WHERE user_id = ? AND revoked = 0`, userID)
	return err
}

func (l *Lite) GetDayPlan(ctx context.Context, key model.PlanKey) (model.DayPlan, bool, error) {
	var prio, notes, tasks string
	err := l.db.QueryRowContext(ctx,
		`SELECT top_priorities, brain_dump, time_slot_tasks
		 FROM day_plans WHERE id = ? AND user_id = ?`,
		key.String(), key.UserID,
	).Scan(&prio, &notes, &tasks)
	if errors.Is(err, sql.ErrNoRows) {
		return model.EmptyDayPlan(), false, nil
	}
	if err != nil {
		return model.DayPlan{}, false, err
	}
	p, err := decodePlan([]byte(prio), notes, []byte(tasks))
	return p, err == nil, err
}

func (l *Lite) MergeDayPlan(ctx context.Context, key model.PlanKey, patch model.PlanPatch) error {
	c, err := encodePatch(patch)
	if err != nil {
		return err
	}
	prio, notes, tasks := nullable(c.priorities), c.notes, nullable(c.tasks)
	now := l.now().Unix()
	_, err = l.db.ExecContext(ctx,
		`INSERT INTO day_plans (id, user_id, plan_date, top_priorities, brain_dump, time_slot_tasks, created_at, updated_at)
		 VALUES (?, ?, ?, COALESCE(?, '["","",""]'), COALESCE(?, ''), COALESCE(?, '{}'), ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   top_priorities  = COALESCE(?, top_priorities),
		   brain_dump      = COALESCE(?, brain_dump),
		   time_slot_tasks = COALESCE(?, time_slot_tasks),
		   updated_at      = ?`,
		key.String(), key.UserID, model.FormatDate(key.Date), prio, notes, tasks, now, now,
		prio, notes, tasks, now,
	)
	return err
}

func nullable(b []byte) *string {
	if b == nil {
		return nil
	}
	s := string(b)
	return &s
}
