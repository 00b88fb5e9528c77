package main

import (
	"bytes"
	"context"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"timebox/internal/auth"
	"timebox/internal/config"
	"timebox/internal/handler"
	"timebox/internal/identity"
	"timebox/internal/metrics"
	"timebox/internal/model"
	"timebox/internal/planner"
	"timebox/internal/server"
	"timebox/internal/store"
)

func TestParseLine(t *testing.T) {
	now := time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		line string
		want command
		err  bool
	}{
		{"p1 Ship it", command{action: actPriority, index: 0, text: "Ship it"}, false},
		{"P3", command{action: actPriority, index: 2}, false},
		{"note  call mom ", command{action: actNote, text: "call mom"}, false},
		{"9:00 standup", command{action: actTask, hour: 9, slot: model.TopOfHour, text: "standup"}, false},
		{"14:30", command{action: actTask, hour: 14, slot: model.HalfHour}, false},
		{"9:15 nope", command{}, true},
		{"x:00 nope", command{}, true},
		{"date 2024-05-01", command{action: actDate, date: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}, false},
		{"date today", command{action: actDate, date: model.Day(now)}, false},
		{"date May 1", command{}, true},
		{"", command{action: actShow}, false},
		{"save", command{action: actSave}, false},
		{"q", command{action: actQuit}, false},
		{"dance", command{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := parseLine(tt.line, now)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	p := model.EmptyDayPlan().WithTask(9, model.HalfHour, "standup")
	p.TopPriorities[0] = "Ship"
	render(&buf, time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), p, planner.Settings{StartHour: 9, EndHour: 10})

	out := buf.String()
	assert.Contains(t, out, "Thursday, 2 May 2024")
	assert.Contains(t, out, "1. Ship")
	assert.Contains(t, out, " 9:30  standup")
	assert.Contains(t, out, "10:30")
	assert.NotContains(t, out, "11:00")
}

func TestFileKeyring(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	k := &fileKeyring{path: path, cfg: config.DefaultClient()}

	got, err := k.Load()
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, k.Save(identityCreds("u1", "r1")))
	cfg, err := config.LoadClient(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Auth)
	assert.Equal(t, "r1", cfg.Auth.RefreshToken)

	got, err = k.Load()
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)

	require.NoError(t, k.Clear())
	cfg, _ = config.LoadClient(path)
	assert.Nil(t, cfg.Auth)
}

func TestSettingsCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	out, err := run(t, "", "--config", path, "settings", "--start=-3", "--end=20")
	require.NoError(t, err)
	assert.Contains(t, out, "00:00 - 20:30")

	cfg, err := config.LoadClient(path)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.StartHour)
	assert.Equal(t, 20, cfg.EndHour)
}

// startServer runs a real PlannerService on a loopback port.
func startServer(t *testing.T) string {
	t.Helper()
	st, err := store.OpenLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(st.Close)

	iss := auth.NewIssuer("secret", "timebox")
	srv := server.NewGRPC(handler.New(st, iss, nil), iss, nil, nil)
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)
	return lis.Addr().String()
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestEndToEnd(t *testing.T) {
	addr := startServer(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	flags := []string{"--config", path, "--server", addr}

	_, err := run(t, "", append(flags, "register", "--email", "e2e@test.com", "--name", "E2E", "--password", "testpass123")...)
	require.NoError(t, err)

	today := model.FormatDate(time.Now())
	_, err = run(t, "p1 Ship the release\nnote remember milk\n9:00 standup\nquit\n", append(flags, "edit", today)...)
	require.NoError(t, err)

	out, err := run(t, "", append(flags, "show", today)...)
	require.NoError(t, err)
	assert.Contains(t, out, "1. Ship the release")
	assert.Contains(t, out, "remember milk")
	assert.Contains(t, out, " 9:00  standup")

	_, err = run(t, "", append(flags, "logout")...)
	require.NoError(t, err)
	_, err = run(t, "", append(flags, "show")...)
	assert.Error(t, err)
}

func TestEditRejectsFutureDate(t *testing.T) {
	addr := startServer(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	flags := []string{"--config", path, "--server", addr}

	_, err := run(t, "", append(flags, "register", "--email", "f@test.com", "--name", "F", "--password", "testpass123")...)
	require.NoError(t, err)

	tomorrow := model.FormatDate(time.Now().AddDate(0, 0, 1))
	_, err = run(t, "quit\n", append(flags, "edit", tomorrow)...)
	assert.ErrorIs(t, err, planner.ErrFutureDate)
}

func identityCreds(uid, refresh string) identity.Credentials {
	return identity.Credentials{Identity: identity.Identity{UserID: uid}, AccessToken: "a", RefreshToken: refresh}
}

func TestLogCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewAutosave(reg)
	m.Write("ok")
	m.Write("ok")
	m.Suppress()

	core, logs := observer.New(zap.InfoLevel)
	logCounters(zap.New(core), reg)

	writes := logs.FilterMessage("timebox_autosave_writes_total").All()
	require.Len(t, writes, 1)
	ctx := writes[0].ContextMap()
	assert.Equal(t, 2.0, ctx["value"])
	assert.Equal(t, "ok", ctx["result"])
	assert.Len(t, logs.FilterMessage("timebox_autosave_suppressed_total").All(), 1)
}
