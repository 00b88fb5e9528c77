// Package server assembles the gRPC server used by cmd/server and by tests
// that need a live PlannerService.
package server

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"timebox/internal/auth"
	"timebox/internal/middleware"
	"timebox/internal/rpc"
)

// NewGRPC registers srv on a server that decodes with rpc.Codec whatever
// content-subtype the caller announces. Interceptors run rate limit, then
// auth, then logging. rl may be nil.
func NewGRPC(srv rpc.PlannerServer, tokens *auth.Issuer, rl *middleware.RateLimiter, log *zap.Logger) *grpc.Server {
	if log == nil {
		log = zap.NewNop()
	}
	chain := []grpc.UnaryServerInterceptor{}
	if rl != nil {
		chain = append(chain, middleware.RateLimit(rl))
	}
	chain = append(chain, middleware.Auth(tokens), logCalls(log))

	s := grpc.NewServer(
		grpc.ForceServerCodec(rpc.Codec{}),
		grpc.ChainUnaryInterceptor(chain...),
	)
	rpc.RegisterPlannerServer(s, srv)
	return s
}

func logCalls(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		log.Info("grpc call",
			zap.String("method", info.FullMethod),
			zap.Stringer("code", status.Code(err)),
			zap.Duration("duration", time.Since(start)),
			zap.String("user", middleware.UserID(ctx)),
		)
		return resp, err
	}
}
