package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/schedy/internal/actor"
	"github.com/ManuGH/schedy/internal/health"
	"github.com/ManuGH/schedy/internal/log"
	"github.com/ManuGH/schedy/internal/room"
	"github.com/ManuGH/schedy/internal/schedule"
	"github.com/ManuGH/schedy/internal/store"
)

type nopCaller struct{}

func (nopCaller) CallService(context.Context, string, string, map[string]any) error { return nil }

type mapCore struct {
	rooms map[string]*room.Room
}

func (c mapCore) Rooms() []*room.Room {
	out := make([]*room.Room, 0, len(c.rooms))
	for _, r := range c.rooms {
		out = append(out, r)
	}
	return out
}

func (c mapCore) Room(name string) *room.Room { return c.rooms[name] }

type fakeReloader struct {
	err    error
	called bool
}

func (f *fakeReloader) Reload(context.Context) error {
	f.called = true
	return f.err
}

func newTestServer(t *testing.T, opts Options) (*Server, *fakeReloader) {
	t.Helper()

	sched, err := schedule.Build([]schedule.RuleConfig{{Value: 20.0}})
	require.NoError(t, err)

	a, err := actor.New("thermostat", "climate.living", nil, actor.Deps{
		Caller: nopCaller{},
		Logger: log.WithComponent("actor"),
	})
	require.NoError(t, err)

	r, err := room.New(room.Config{Name: "living"}, sched, []actor.Actor{a}, store.NewMemoryStore())
	require.NoError(t, err)

	reloader := &fakeReloader{}
	srv := New(mapCore{rooms: map[string]*room.Room{"living": r}}, reloader, health.NewManager("test"), opts)
	return srv, reloader
}

func doJSON(t *testing.T, h http.Handler, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestProbes(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	h := srv.Handler()

	assert.Equal(t, 200, doJSON(t, h, "GET", "/healthz", "", nil).Code)
	assert.Equal(t, 200, doJSON(t, h, "GET", "/readyz", "", nil).Code)
}

func TestListRooms(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	rec := doJSON(t, srv.Handler(), "GET", "/api/rooms", "", nil)
	require.Equal(t, 200, rec.Code)

	var rooms []room.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rooms))
	require.Len(t, rooms, 1)
	assert.Equal(t, "living", rooms[0].Name)
}

func TestGetRoomNotFound(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	rec := doJSON(t, srv.Handler(), "GET", "/api/rooms/attic", "", nil)
	assert.Equal(t, 404, rec.Code)
}

func TestOverrideLifecycle(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	h := srv.Handler()

	rec := doJSON(t, h, "POST", "/api/rooms/living/override", `{"value": 23.5, "duration": "2h"}`, nil)
	require.Equal(t, 200, rec.Code)

	var snap room.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.NotNil(t, snap.Overlay)
	assert.Equal(t, "23.5", snap.Overlay.Value)
	assert.NotNil(t, snap.Overlay.ExpiresAt)
	assert.Equal(t, "23.5", snap.Wanted)

	rec = doJSON(t, h, "DELETE", "/api/rooms/living/override", "", nil)
	require.Equal(t, 200, rec.Code)
	snap = room.Snapshot{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Nil(t, snap.Overlay)
	assert.Equal(t, "20", snap.Wanted)
}

func TestOverrideValidation(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	h := srv.Handler()

	assert.Equal(t, 400, doJSON(t, h, "POST", "/api/rooms/living/override", `{"value": "warm"}`, nil).Code)
	assert.Equal(t, 400, doJSON(t, h, "POST", "/api/rooms/living/override", `{}`, nil).Code)
	assert.Equal(t, 400, doJSON(t, h, "POST", "/api/rooms/living/override", `{"value": 21, "duration": "soon"}`, nil).Code)
	assert.Equal(t, 400, doJSON(t, h, "POST", "/api/rooms/living/override", `not json`, nil).Code)
}

func TestOverrideAcceptsOff(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	rec := doJSON(t, srv.Handler(), "POST", "/api/rooms/living/override", `{"value": "OFF"}`, nil)
	require.Equal(t, 200, rec.Code)

	var snap room.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "OFF", snap.Wanted)
}

func TestReschedule(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	h := srv.Handler()

	require.Equal(t, 200, doJSON(t, h, "POST", "/api/rooms/living/override", `{"value": 25}`, nil).Code)
	rec := doJSON(t, h, "POST", "/api/rooms/living/reschedule", "", nil)
	require.Equal(t, 200, rec.Code)

	var snap room.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Nil(t, snap.Overlay)
}

func TestBearerAuth(t *testing.T) {
	srv, _ := newTestServer(t, Options{Token: "sesame"})
	h := srv.Handler()

	assert.Equal(t, 401, doJSON(t, h, "GET", "/api/rooms", "", nil).Code)
	assert.Equal(t, 401, doJSON(t, h, "GET", "/api/rooms", "", http.Header{"Authorization": {"Bearer wrong"}}).Code)
	assert.Equal(t, 200, doJSON(t, h, "GET", "/api/rooms", "", http.Header{"Authorization": {"Bearer sesame"}}).Code)

	// Probes stay open for the orchestrator.
	assert.Equal(t, 200, doJSON(t, h, "GET", "/healthz", "", nil).Code)
}

func TestReload(t *testing.T) {
	srv, reloader := newTestServer(t, Options{})
	h := srv.Handler()

	assert.Equal(t, 200, doJSON(t, h, "POST", "/api/reload", "", nil).Code)
	assert.True(t, reloader.called)

	reloader.err = errors.New("bad config")
	assert.Equal(t, 422, doJSON(t, h, "POST", "/api/reload", "", nil).Code)
}

func TestRequestIDHeader(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	rec := doJSON(t, srv.Handler(), "GET", "/healthz", "", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = doJSON(t, srv.Handler(), "GET", "/healthz", "", http.Header{"X-Request-Id": {"abc"}})
	assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
}
