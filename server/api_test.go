package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zynerotech/eventrelay/codec"
	"github.com/zynerotech/eventrelay/eventbus"
	"github.com/zynerotech/eventrelay/logger"
	"github.com/zynerotech/eventrelay/registry"
	"github.com/zynerotech/eventrelay/relay"
	"github.com/zynerotech/eventrelay/transport"
)

type contentChanged struct {
	ContentID string `json:"content_id"`
}

type recordingSender struct {
	mu   sync.Mutex
	sent []transport.Envelope
}

func (s *recordingSender) Send(_ context.Context, e transport.Envelope) {
	s.mu.Lock()
	s.sent = append(s.sent, e)
	s.mu.Unlock()
}

type fixedStatus relay.Status

func (s fixedStatus) Status() relay.Status { return relay.Status(s) }

var local = relay.Identity{ServerName: "A", ApplicationName: "svc1"}

type fixture struct {
	srv  *Server
	bus  *eventbus.Bus
	sent *recordingSender
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := registry.MustNew(registry.Of[contentChanged]("ContentChanged"), registry.Of[string]("string"))
	c := codec.New(reg)
	sent := &recordingSender{}
	bus := eventbus.New(local, sent, eventbus.WithLogger(logger.Nop()))

	srv, err := New(Config{})
	require.NoError(t, err)
	NewAPI(bus, c, fixedStatus{State: "subscribed", Channel: "events", Identity: local}).Register(srv.App())

	return &fixture{srv: srv, bus: bus, sent: sent}
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := f.srv.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func TestRaiseEvent(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodPost, "/events",
		`{"event_id":"content-changed","parameters":{"type":"ContentChanged","value":{"content_id":"42"}}}`)
	require.Equal(t, http.StatusAccepted, code, body)

	assert.JSONEq(t, `{"event_id":"content-changed","sequence_number":1,"server_name":"A","application_name":"svc1",
		"parameters":{"type":"ContentChanged","value":{"content_id":"42"}}}`, body)

	require.Len(t, f.sent.sent, 1)
	assert.Equal(t, contentChanged{ContentID: "42"}, f.sent.sent[0].Parameters)
}

func TestRaiseEventWithoutParameters(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodPost, "/events", `{"event_id":"flush"}`)
	require.Equal(t, http.StatusAccepted, code, body)
	require.Len(t, f.sent.sent, 1)
	assert.Nil(t, f.sent.sent[0].Parameters)
}

func TestRaiseEventErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
	}{
		{"malformed body", `{"event_id":`, http.StatusBadRequest},
		{"missing event id", `{"parameters":{"type":"string","value":"x"}}`, http.StatusBadRequest},
		{"missing type", `{"event_id":"X","parameters":{"value":"x"}}`, http.StatusBadRequest},
		{"unknown type", `{"event_id":"X","parameters":{"type":"Nope","value":1}}`, http.StatusUnprocessableEntity},
		{"value of wrong shape", `{"event_id":"X","parameters":{"type":"string","value":{"a":1}}}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			code, body := f.do(t, http.MethodPost, "/events", tt.body)
			assert.Equal(t, tt.code, code, body)

			var resp errorResponse
			require.NoError(t, sonic.UnmarshalString(body, &resp))
			assert.NotEmpty(t, resp.Error)
			assert.Empty(t, f.sent.sent)
		})
	}
}

func TestRecentEvents(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodGet, "/events/recent", "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, body)

	for i := uint64(1); i <= 3; i++ {
		f.bus.HandleEvent(context.Background(), transport.Envelope{
			EventID: "X", SequenceNumber: i, ServerName: "B", ApplicationName: "svc1", Parameters: "v",
		})
	}

	code, body = f.do(t, http.MethodGet, "/events/recent?limit=2", "")
	require.Equal(t, http.StatusOK, code)

	var got []map[string]any
	require.NoError(t, sonic.UnmarshalString(body, &got))
	require.Len(t, got, 2)
	assert.EqualValues(t, 2, got[0]["sequence_number"])
	assert.EqualValues(t, 3, got[1]["sequence_number"])

	code, _ = f.do(t, http.MethodGet, "/events/recent?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestStatusAndTypes(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"state":"subscribed","channel":"events",
		"identity":{"server_name":"A","application_name":"svc1"}}`, body)

	code, body = f.do(t, http.MethodGet, "/types", "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `["ContentChanged","string"]`, body)
}

func TestRunDisabledReturnsOnCancel(t *testing.T) {
	srv, err := New(Config{Enabled: false})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, srv.Run(ctx))
}
