package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carpi-audio/duckd/pkg/ducker"
	"github.com/carpi-audio/duckd/pkg/host"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// fakeSource serves canned status and metrics documents.
type fakeSource struct {
	status  ducker.Status
	metrics ducker.Snapshot
}

func (f *fakeSource) Status() ducker.Status    { return f.status }
func (f *fakeSource) Metrics() ducker.Snapshot { return f.metrics }

// fakeReconnector returns a canned routing report.
type fakeReconnector struct {
	report host.Report
	calls  int
}

func (f *fakeReconnector) Reconnect() host.Report {
	f.calls++
	return f.report
}

func newTestServer(t *testing.T) (*Server, *ducker.Store, *fakeSource, *fakeReconnector) {
	t.Helper()
	store := ducker.NewStore(filepath.Join(t.TempDir(), "settings.json"), testLogger())
	source := &fakeSource{
		status: ducker.Status{
			Running:    true,
			SampleRate: 48000,
			BlockSize:  256,
			LatencyMs:  256.0 / 48000.0 * 1000.0,
		},
		metrics: ducker.Snapshot{
			PrimaryLevelDB: -18.5,
			DuckAmount:     0.1,
			PrimaryActive:  true,
		},
	}
	router := &fakeReconnector{
		report: host.Report{
			Connected: []host.Link{{From: "a:out", To: "duck:primary_in_L"}},
			Failed:    []host.LinkError{},
		},
	}
	return NewServer(store, source, router, nil, testLogger()), store, source, router
}

func doJSON(t *testing.T, h http.Handler, method, path, body string, out any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if out != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec
}

func TestGetSettingsReturnsCurrentDocument(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	var got ducker.Settings
	rec := doJSON(t, srv, http.MethodGet, "/api/settings", "", &got)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, ducker.DefaultSettings(), got)
}

func TestPatchSettingsMergesSingleKey(t *testing.T) {
	srv, store, _, _ := newTestServer(t)

	var got ducker.Settings
	rec := doJSON(t, srv, http.MethodPost, "/api/settings",
		`{"primary_threshold_db": -35.0}`, &got)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, -35.0, got.PrimaryThresholdDB)

	// Only the patched key changed.
	want := ducker.DefaultSettings()
	want.PrimaryThresholdDB = -35.0
	assert.Equal(t, want, got)
	assert.Equal(t, want, store.Get())
}

func TestPatchSettingsIgnoresUnknownKeys(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	var got ducker.Settings
	rec := doJSON(t, srv, http.MethodPost, "/api/settings",
		`{"duck_amount_db": -12.0, "not_a_setting": 42}`, &got)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, -12.0, got.DuckAmountDB)
}

func TestPatchSettingsRejectsMalformedBody(t *testing.T) {
	srv, store, _, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/settings", `{"attack_time_ms": `, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "invalid settings document")

	// Nothing changed.
	assert.Equal(t, ducker.DefaultSettings(), store.Get())
}

func TestResetSettingsRestoresDefaults(t *testing.T) {
	srv, store, _, _ := newTestServer(t)
	store.Update(ducker.Patch{DuckAmountDB: ptr(-30.0)})

	var got ducker.Settings
	rec := doJSON(t, srv, http.MethodPost, "/api/reset-settings", "", &got)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ducker.DefaultSettings(), got)
	assert.Equal(t, ducker.DefaultSettings(), store.Get())
}

func TestStatusEndpoint(t *testing.T) {
	srv, _, source, _ := newTestServer(t)

	var got map[string]any
	rec := doJSON(t, srv, http.MethodGet, "/api/status", "", &got)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, got["running"])
	assert.Equal(t, float64(source.status.SampleRate), got["samplerate"])
	assert.Equal(t, float64(source.status.BlockSize), got["blocksize"])
	assert.InDelta(t, source.status.LatencyMs, got["latency_ms"].(float64), 1e-9)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	var got map[string]any
	rec := doJSON(t, srv, http.MethodGet, "/api/metrics", "", &got)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, -18.5, got["primary_level_db"])
	assert.Equal(t, 0.1, got["duck_amount"])
	assert.Equal(t, true, got["primary_active"])
}

func TestAutoconnectReportsOutcome(t *testing.T) {
	srv, _, _, router := newTestServer(t)

	var got autoconnectResponse
	rec := doJSON(t, srv, http.MethodPost, "/api/autoconnect", "", &got)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, router.calls)
	assert.Equal(t, "ok", got.Status)
	require.Len(t, got.Connected, 1)
	assert.Equal(t, "a:out", got.Connected[0].From)
	assert.Empty(t, got.Failed)
}

func TestAutoconnectWithFailures(t *testing.T) {
	srv, _, _, router := newTestServer(t)
	router.report.Failed = []host.LinkError{
		{From: "missing:out", To: "duck:primary_in_R", Error: errors.New("no such port").Error()},
	}

	var got autoconnectResponse
	doJSON(t, srv, http.MethodPost, "/api/autoconnect", "", &got)

	require.Len(t, got.Failed, 1)
	assert.Equal(t, "no such port", got.Failed[0].Error)
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodDelete, "/api/settings", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestWebSocketReceivesBroadcasts(t *testing.T) {
	hub := NewHub(testLogger())
	store := ducker.NewStore(filepath.Join(t.TempDir(), "settings.json"), testLogger())
	srv := NewServer(store, &fakeSource{}, nil, hub, testLogger())

	ts := httptest.NewServer(srv)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, time.Second, time.Millisecond)

	hub.Broadcast("metrics", ducker.Snapshot{PrimaryLevelDB: -20.0, DuckAmount: 0.5})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var envelope struct {
		Event string          `json:"event"`
		Data  ducker.Snapshot `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msg, &envelope))
	assert.Equal(t, "metrics", envelope.Event)
	assert.Equal(t, -20.0, envelope.Data.PrimaryLevelDB)
	assert.Equal(t, 0.5, envelope.Data.DuckAmount)
}

func ptr[T any](v T) *T { return &v }
