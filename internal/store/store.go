package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"timebox/internal/model"
)

var ErrNotFound = errors.New("not found")

type Users interface {
	CreateUser(ctx context.Context, u *model.User) error
	UserByEmail(ctx context.Context, email string) (*model.User, error)
	UserByID(ctx context.Context, id string) (*model.User, error)
}

type RefreshTokens interface {
	CreateRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (string, error)
	GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*RefreshToken, error)
	RotateRefreshToken(ctx context.Context, oldID, newID, userID, newHash string, newExpiry time.Time) error
	RevokeAllRefreshTokens(ctx context.Context, userID string) error
}

// Plans is the document store for day plans. A missing record is reported
// as found == false with a nil error.
type Plans interface {
	GetDayPlan(ctx context.Context, key model.PlanKey) (plan model.DayPlan, found bool, err error)
	MergeDayPlan(ctx context.Context, key model.PlanKey, patch model.PlanPatch) error
}

type Backend interface {
	Users
	RefreshTokens
	Plans
	Close()
}

// Store is the postgres backend.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Close() { s.pool.Close() }

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// patch columns: nil means "leave the stored value".
type patchColumns struct {
	priorities []byte
	notes      *string
	tasks      []byte
}

func encodePatch(p model.PlanPatch) (patchColumns, error) {
	var c patchColumns
	var err error
	if p.TopPriorities != nil {
		if c.priorities, err = json.Marshal(p.TopPriorities); err != nil {
			return c, fmt.Errorf("encode priorities: %w", err)
		}
	}
	c.notes = p.BrainDump
	if p.TimeSlotTasks != nil {
		tasks := *p.TimeSlotTasks
		if tasks == nil {
			tasks = model.TimeSlots{}
		}
		if c.tasks, err = json.Marshal(tasks); err != nil {
			return c, fmt.Errorf("encode tasks: %w", err)
		}
	}
	return c, nil
}

func decodePlan(priorities []byte, notes string, tasks []byte) (model.DayPlan, error) {
	p := model.EmptyDayPlan()
	p.BrainDump = notes
	if len(priorities) > 0 {
		var prio []string
		if err := json.Unmarshal(priorities, &prio); err != nil {
			return p, fmt.Errorf("decode priorities: %w", err)
		}
		copy(p.TopPriorities[:], prio)
	}
	if len(tasks) > 0 {
		if err := json.Unmarshal(tasks, &p.TimeSlotTasks); err != nil {
			return p, fmt.Errorf("decode tasks: %w", err)
		}
		if p.TimeSlotTasks == nil {
			p.TimeSlotTasks = model.TimeSlots{}
		}
	}
	return p, nil
}
