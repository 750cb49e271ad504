package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestLoggingInterceptor(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantLevel string
		wantCode  string
	}{
		{name: "ok", wantLevel: "INFO"},
		{name: "connect error", err: connect.NewError(connect.CodeFailedPrecondition, errors.New("unallocated")), wantLevel: "WARN", wantCode: "failed_precondition"},
		{name: "plain error", err: errors.New("disk full"), wantLevel: "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureLogs(t)
			next := func(context.Context, connect.AnyRequest) (connect.AnyResponse, error) {
				return nil, tt.err
			}

			ctx := WithOperator(context.Background(), "anna")
			_, err := LoggingInterceptor()(next)(ctx, connect.NewRequest(&struct{}{}))
			assert.Equal(t, tt.err, err)

			var entry map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
			assert.Equal(t, tt.wantLevel, entry["level"])
			assert.Equal(t, "anna", entry["operator"])
			assert.Contains(t, entry, "duration_ms")
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, entry["code"])
				assert.Equal(t, "unallocated", entry["error"])
			}
		})
	}
}
