package handler

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"timebox/internal/auth"
	"timebox/internal/middleware"
	"timebox/internal/rpc"
	"timebox/internal/store"
)

// Handler implements rpc.PlannerServer on top of a storage backend.
type Handler struct {
	store  store.Backend
	tokens *auth.Issuer
	log    *zap.Logger
	now    func() time.Time
}

var _ rpc.PlannerServer = (*Handler)(nil)

func New(st store.Backend, tokens *auth.Issuer, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{store: st, tokens: tokens, log: log, now: time.Now}
}

func uid(ctx context.Context) (string, error) {
	id := middleware.UserID(ctx)
	if id == "" {
		return "", status.Error(codes.Unauthenticated, "no identity")
	}
	return id, nil
}

func internal(log *zap.Logger, msg string, err error) error {
	log.Error(msg, zap.Error(err))
	return status.Error(codes.Internal, "internal error")
}
