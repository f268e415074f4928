package grpc

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"connectrpc.com/connect"
	"github.com/astro-web3/superset-guest-relay/pkg/logger"
)

var errPanic = errors.New("internal server error")

// callInterceptor turns handler panics into CodeInternal and logs every call
// with its procedure, outcome code and duration.
func callInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (resp connect.AnyResponse, err error) {
			procedure := req.Spec().Procedure
			start := time.Now()

			defer func() {
				if r := recover(); r != nil {
					logger.ErrorContext(ctx, "panic in rpc handler",
						slog.String("procedure", procedure),
						slog.Any("panic", r),
					)
					resp, err = nil, connect.NewError(connect.CodeInternal, errPanic)
				}
				logCall(ctx, procedure, time.Since(start), err)
			}()

			return next(ctx, req)
		}
	}
}

func logCall(ctx context.Context, procedure string, elapsed time.Duration, err error) {
	attrs := []slog.Attr{
		slog.String("procedure", procedure),
		slog.Duration("duration", elapsed),
	}
	if err == nil {
		logger.InfoContext(ctx, "rpc completed", attrs...)
		return
	}
	logger.WarnContext(ctx, "rpc failed", append(attrs,
		slog.String("code", connect.CodeOf(err).String()),
		slog.String("error", err.Error()),
	)...)
}
