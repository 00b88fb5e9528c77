package handler

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"timebox/internal/auth"
	"timebox/internal/model"
	"timebox/internal/rpc"
	"timebox/internal/store"
)

const minPasswordLen = 8

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (h *Handler) Register(ctx context.Context, req *rpc.RegisterRequest) (*rpc.Session, error) {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" || strings.TrimSpace(req.Name) == "" {
		return nil, status.Error(codes.InvalidArgument, "all fields required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid email")
	}
	if len(req.Password) < minPasswordLen {
		return nil, status.Error(codes.InvalidArgument, "password too short")
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, internal(h.log, "hash password", err)
	}

	u := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		Name:         strings.TrimSpace(req.Name),
	}

	if err := h.store.CreateUser(ctx, u); err != nil {
		// unique violation = dup email, but don't reveal that
		h.log.Info("register rejected", zap.Error(err))
		return nil, status.Error(codes.AlreadyExists, "registration failed")
	}

	return h.session(ctx, u)
}

func (h *Handler) Login(ctx context.Context, req *rpc.LoginRequest) (*rpc.Session, error) {
	if req.Email == "" || req.Password == "" {
		return nil, status.Error(codes.InvalidArgument, "email and password required")
	}

	u, err := h.store.UserByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			h.log.Error("login lookup", zap.Error(err))
		}
		return nil, status.Error(codes.Unauthenticated, "invalid credentials")
	}

	if !auth.CheckPassword(u.PasswordHash, req.Password) {
		return nil, status.Error(codes.Unauthenticated, "invalid credentials")
	}

	return h.session(ctx, u)
}

// Refresh exchanges a refresh token for a new access/refresh pair. Presenting
// an already rotated token revokes every token of its owner.
func (h *Handler) Refresh(ctx context.Context, req *rpc.RefreshRequest) (*rpc.Session, error) {
	if req.RefreshToken == "" {
		return nil, status.Error(codes.InvalidArgument, "refresh token required")
	}

	rt, err := h.store.GetRefreshTokenByHash(ctx, auth.HashRefreshToken(req.RefreshToken))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			h.log.Error("refresh lookup", zap.Error(err))
		}
		return nil, status.Error(codes.Unauthenticated, "invalid refresh token")
	}
	if rt.Revoked && rt.ReplacedBy != nil {
		h.log.Warn("refresh token reuse", zap.String("user", rt.UserID))
		if err := h.store.RevokeAllRefreshTokens(ctx, rt.UserID); err != nil {
			h.log.Error("revoke after reuse", zap.Error(err))
		}
		return nil, status.Error(codes.Unauthenticated, "invalid refresh token")
	}
	if !rt.Usable(h.now()) {
		return nil, status.Error(codes.Unauthenticated, "invalid refresh token")
	}

	u, err := h.store.UserByID(ctx, rt.UserID)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "invalid refresh token")
	}

	raw, hash, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, internal(h.log, "generate refresh token", err)
	}
	if err := h.store.RotateRefreshToken(ctx, rt.ID, uuid.New().String(), u.ID, hash, h.now().Add(auth.RefreshTTL)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, status.Error(codes.Unauthenticated, "invalid refresh token")
		}
		return nil, internal(h.log, "rotate refresh token", err)
	}

	tok, err := h.tokens.Access(u.ID)
	if err != nil {
		return nil, internal(h.log, "sign token", err)
	}
	return &rpc.Session{Token: tok, UserID: u.ID, Name: u.Name, RefreshToken: raw}, nil
}

func (h *Handler) Logout(ctx context.Context, _ *rpc.Empty) (*rpc.Empty, error) {
	userID, err := uid(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.store.RevokeAllRefreshTokens(ctx, userID); err != nil {
		return nil, internal(h.log, "revoke refresh tokens", err)
	}
	return &rpc.Empty{}, nil
}

func (h *Handler) session(ctx context.Context, u *model.User) (*rpc.Session, error) {
	tok, err := h.tokens.Access(u.ID)
	if err != nil {
		return nil, internal(h.log, "sign token", err)
	}
	raw, hash, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, internal(h.log, "generate refresh token", err)
	}
	if _, err := h.store.CreateRefreshToken(ctx, u.ID, hash, h.now().Add(auth.RefreshTTL)); err != nil {
		return nil, internal(h.log, "store refresh token", err)
	}
	return &rpc.Session{Token: tok, UserID: u.ID, Name: u.Name, RefreshToken: raw}, nil
}
