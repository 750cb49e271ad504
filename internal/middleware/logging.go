package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"connectrpc.com/connect"
)

// LoggingInterceptor logs one line per RPC. Handled errors carrying a Connect
// code log at Warn, anything else at Error. The operator is empty before login.
func LoggingInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)

			level, msg := slog.LevelInfo, "RPC ok"
			attrs := []slog.Attr{
				slog.String("procedure", req.Spec().Procedure),
				slog.String("operator", GetOperator(ctx)),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			}

			var connectErr *connect.Error
			switch {
			case errors.As(err, &connectErr):
				level, msg = slog.LevelWarn, "RPC error"
				attrs = append(attrs, slog.String("code", connectErr.Code().String()), slog.String("error", connectErr.Message()))
			case err != nil:
				level, msg = slog.LevelError, "RPC error"
				attrs = append(attrs, slog.Any("error", err))
			}

			slog.LogAttrs(ctx, level, msg, attrs...)
			return resp, err
		}
	}
}
