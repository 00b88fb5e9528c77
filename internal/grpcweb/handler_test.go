package grpcweb

import (
	"bytes"
	"context"
	"encoding/binary"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"timebox/internal/auth"
	"timebox/internal/handler"
	"timebox/internal/rpc"
	"timebox/internal/server"
	"timebox/internal/store"
)

func newBridge(t *testing.T) *Bridge {
	t.Helper()
	ctx := context.Background()
	st, err := store.OpenLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(st.Close)

	iss := auth.NewIssuer("secret", "timebox")
	srv := server.NewGRPC(handler.New(st, iss, nil), iss, nil, nil)
	lis := bufconn.Listen(1 << 20)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	b, err := New("passthrough:///bufnet", nil,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func call(t *testing.T, h http.Handler, method, token string, msg rpc.Message) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/"+rpc.ServiceName+"/"+method, bytes.NewReader(frame(0x00, msg.MarshalWire())))
	req.Header.Set("Content-Type", "application/grpc-web+proto")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// frames splits a grpc-web response body into (data, trailer).
func frames(t *testing.T, body []byte) (data []byte, trailer string) {
	t.Helper()
	for len(body) >= 5 {
		n := binary.BigEndian.Uint32(body[1:5])
		require.LessOrEqual(t, int(n)+5, len(body))
		if body[0]&0x80 != 0 {
			trailer = string(body[5 : 5+n])
		} else {
			data = body[5 : 5+n]
		}
		body = body[5+n:]
	}
	return data, trailer
}

func TestBridgeRoundTrip(t *testing.T) {
	h := newBridge(t).Handler()

	rec := call(t, h, "Register", "", &rpc.RegisterRequest{Email: "web@test.com", Password: "testpass123", Name: "Web"})
	require.Equal(t, http.StatusOK, rec.Code)
	data, trailer := frames(t, rec.Body.Bytes())
	assert.Equal(t, "grpc-status:0\r\n", trailer)

	var sess rpc.Session
	require.NoError(t, sess.UnmarshalWire(data))
	require.NotEmpty(t, sess.Token)

	rec = call(t, h, "GetDayPlan", sess.Token, &rpc.GetDayPlanRequest{Date: "2024-05-02"})
	data, trailer = frames(t, rec.Body.Bytes())
	assert.Equal(t, "grpc-status:0\r\n", trailer)
	var got rpc.GetDayPlanResponse
	require.NoError(t, got.UnmarshalWire(data))
	assert.False(t, got.Found)
}

func TestBridgeErrors(t *testing.T) {
	h := newBridge(t).Handler()

	t.Run("unauthenticated", func(t *testing.T) {
		rec := call(t, h, "GetDayPlan", "", &rpc.GetDayPlanRequest{Date: "2024-05-02"})
		_, trailer := frames(t, rec.Body.Bytes())
		assert.Contains(t, trailer, "grpc-status:16")
	})

	t.Run("not grpc-web", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, Prefix+"Login", nil)
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	})

	t.Run("method", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, Prefix+"Login", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})

	t.Run("short body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, Prefix+"Login", bytes.NewReader([]byte{0, 0}))
		req.Header.Set("Content-Type", "application/grpc-web+proto")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		_, trailer := frames(t, rec.Body.Bytes())
		assert.Contains(t, trailer, "grpc-status:3")
	})
}

func TestUnframe(t *testing.T) {
	p, err := unframe(frame(0x00, []byte("abc")))
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), p)

	_, err = unframe([]byte{0, 0, 0, 0, 9, 1})
	assert.Error(t, err)
	_, err = unframe(frame(0x80, nil))
	assert.Error(t, err)
}
