package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type webhookCall struct {
	Path  string
	Auth  string
	Event string
	Data  map[string]any
}

func newWebhookServer(t *testing.T, status int) (*httptest.Server, func() []webhookCall) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []webhookCall
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Event string         `json:"event"`
			Data  map[string]any `json:"data"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		calls = append(calls, webhookCall{Path: r.URL.Path, Auth: r.Header.Get("Authorization"), Event: body.Event, Data: body.Data})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []webhookCall {
		mu.Lock()
		defer mu.Unlock()
		return append([]webhookCall(nil), calls...)
	}
}

func TestNotifierSendsAlert(t *testing.T) {
	srv, calls := newWebhookServer(t, http.StatusNoContent)
	n := NewWebhookNotifier(srv.URL+"/alerts", "", "secret", srv.Client(), nil)

	n.Send(context.Background(), AlertChannelOps, "no groups found")

	got := calls()
	require.Len(t, got, 1)
	assert.Equal(t, "/alerts", got[0].Path)
	assert.Equal(t, "Bearer secret", got[0].Auth)
	assert.Equal(t, EventOperatorAlert, got[0].Event)
	assert.Equal(t, "ops", got[0].Data["channel"])
	assert.Equal(t, "no groups found", got[0].Data["text"])
}

func TestNotifierWarningFallsBackToAlertURL(t *testing.T) {
	srv, calls := newWebhookServer(t, http.StatusOK)
	n := NewWebhookNotifier(srv.URL+"/alerts", "  ", "", srv.Client(), nil)

	require.NoError(t, n.SendWarning(context.Background(), "5511987654321", ReasonInactive))

	got := calls()
	require.Len(t, got, 1)
	assert.Equal(t, "/alerts", got[0].Path)
	assert.Empty(t, got[0].Auth)
	assert.Equal(t, EventMemberWarning, got[0].Event)
	assert.Equal(t, "5511987654321", got[0].Data["phone"])
	assert.Equal(t, ReasonInactive, got[0].Data["reason"])
}

func TestNotifierWarningUsesOwnURL(t *testing.T) {
	srv, calls := newWebhookServer(t, http.StatusOK)
	n := NewWebhookNotifier(srv.URL+"/alerts", srv.URL+"/warnings", "", srv.Client(), nil)

	require.NoError(t, n.SendWarning(context.Background(), "5511987654321", ReasonNotFound))

	got := calls()
	require.Len(t, got, 1)
	assert.Equal(t, "/warnings", got[0].Path)
}

func TestNotifierWithoutURLIsNoop(t *testing.T) {
	n := NewWebhookNotifier("", "", "", nil, nil)
	n.Send(context.Background(), AlertChannelOps, "ignored")
	assert.NoError(t, n.SendWarning(context.Background(), "5511987654321", ReasonInactive))
}

func TestNotifierWarningReportsBadStatus(t *testing.T) {
	srv, _ := newWebhookServer(t, http.StatusBadGateway)
	n := NewWebhookNotifier(srv.URL, "", "", srv.Client(), nil)

	err := n.SendWarning(context.Background(), "5511987654321", ReasonInactive)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
