package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trip-planner/planner/internal/apperr"
	"github.com/trip-planner/planner/internal/auth"
	"github.com/trip-planner/planner/internal/backend"
	"github.com/trip-planner/planner/internal/editlock"
	"github.com/trip-planner/planner/internal/logging"
	"github.com/trip-planner/planner/internal/mapsync"
	"github.com/trip-planner/planner/internal/mapview"
	"github.com/trip-planner/planner/internal/places"
	"github.com/trip-planner/planner/internal/planner"
	"github.com/trip-planner/planner/internal/profile"
	"github.com/trip-planner/planner/internal/storage"
	"github.com/trip-planner/planner/internal/websocket"
)

const placesResponse = `{"places": [
  {"id": "acc", "displayName": {"text": "Hotel"}, "location": {"latitude": 37.50, "longitude": 127.00}, "types": ["lodging"]},
  {"id": "palace", "displayName": {"text": "Palace"}, "location": {"latitude": 37.58, "longitude": 126.98}, "types": ["tourist_attraction"]}
]}`

// fakeBackend is the trip backend as seen by the planner.
type fakeBackend struct {
	mu        sync.Mutex
	acquires  atomic.Int32
	releases  atomic.Int32
	conflict  map[string]int64
	gate      chan struct{}
	expired   atomic.Bool
	submitted []backend.PlanRequest
}

func (f *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	envelope := func(w http.ResponseWriter, status int, data string) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"statusCode":`+itoa(status)+`,"message":"ok","data":`+data+`}`)
	}

	mux.HandleFunc("POST /api/trips/{id}/lock", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		owner, held := f.conflict[r.PathValue("id")]
		gate := f.gate
		f.mu.Unlock()
		if gate != nil {
			<-gate
		}
		if held {
			envelope(w, http.StatusConflict, `{"success":false,"currentOwner":`+itoa64(owner)+`}`)
			return
		}
		f.acquires.Add(1)
		envelope(w, http.StatusOK, `{"success":true,"heartbeatInterval":30}`)
	})
	mux.HandleFunc("DELETE /api/trips/{id}/lock", func(w http.ResponseWriter, r *http.Request) {
		f.releases.Add(1)
		envelope(w, http.StatusOK, `null`)
	})
	mux.HandleFunc("GET /api/trips/{id}/lock/status", func(w http.ResponseWriter, r *http.Request) {
		envelope(w, http.StatusOK, `{"locked":true,"currentOwner":5,"timeRemaining":25}`)
	})
	mux.HandleFunc("GET /api/trips/record", func(w http.ResponseWriter, r *http.Request) {
		if f.expired.Load() {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"statusCode":401,"errorCode":"UNAUTHORIZED","message":"expired"}`)
			return
		}
		envelope(w, http.StatusOK, `{"trips":[{"trip":{"tripId":42,"title":"제주 여행","createdAt":"2023-05-01T10:30:00","startDate":"2023-05-15T00:00:00","endDate":"2023-05-17T00:00:00"},"tripParticipant":[5],"hasStep1":true,"hasStep2":false}]}`)
	})
	mux.HandleFunc("POST /api/trips/plan", func(w http.ResponseWriter, r *http.Request) {
		var req backend.PlanRequest
		json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.submitted = append(f.submitted, req)
		f.mu.Unlock()
		envelope(w, http.StatusCreated, `{"tripId":7}`)
	})
	mux.HandleFunc("GET /api/auth/check-name", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("nickname") == "taken" {
			w.WriteHeader(http.StatusConflict)
			io.WriteString(w, `{"statusCode":409,"errorCode":"DUPLICATE","message":"exists"}`)
			return
		}
		envelope(w, http.StatusOK, `null`)
	})
	return mux
}

func itoa(n int) string { return itoa64(int64(n)) }

func itoa64(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

type stack struct {
	server  *httptest.Server
	backend *fakeBackend
	lock    *editlock.Session
	planner *planner.Service
}

func newStack(t *testing.T) *stack {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	fb := &fakeBackend{conflict: map[string]int64{"43": 7}}
	backendSrv := httptest.NewServer(fb.handler())
	t.Cleanup(backendSrv.Close)

	placesSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, placesResponse)
	}))
	t.Cleanup(placesSrv.Close)

	db, err := storage.NewDB(filepath.Join(t.TempDir(), storage.DefaultFile))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, storage.RunMigrations(ctx, db, logging.Discard()))

	tokens := auth.NewStore("")
	client := backend.NewClient(backendSrv.URL, 5*time.Second, tokens)

	hub := websocket.NewHub(nil)
	go hub.Run(ctx)
	events := websocket.NewEventBroadcaster(hub)

	registry := mapsync.NewRegistry(nil)
	surface := mapview.New(mapview.Config{APIKey: "key"}, events, nil)
	surface.Register(registry)
	places.NewSearcher(places.Config{APIKey: "key", Endpoint: placesSrv.URL}, places.NewMemoryCache(), nil).Register(registry)

	session, err := mapsync.Open(ctx, registry, mapsync.MapOptions{Zoom: 12}, nil)
	require.NoError(t, err)

	lock := editlock.New(client, editlock.Options{Guard: events, Notifier: events, Users: tokens})
	t.Cleanup(lock.Close)

	svc := planner.New(planner.Deps{
		Map:      mapsync.NewSync(session, nil),
		Lock:     lock,
		Plans:    client,
		Provider: registry,
		Drafts:   storage.NewDraftRepository(db),
		Events:   events,
	})

	router := NewRouter(Deps{
		DB:      db,
		Hub:     hub,
		Surface: surface,
		Planner: svc,
		Profile: profile.NewService(client, nil),
		Tokens:  tokens,
		Backend: client,
		Trips:   client,
		Logger:  logging.Discard(),
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &stack{server: srv, backend: fb, lock: lock, planner: svc}
}

func (s *stack) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.server.URL+path, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

func errorCode(t *testing.T, raw []byte) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))
	return body.Code
}

func TestHealth(t *testing.T) {
	s := newStack(t)

	status, raw := s.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"healthy","db_connected":true,"backend_reachable":true}`, string(raw))
}

func TestPlanFlow(t *testing.T) {
	s := newStack(t)

	status, raw := s.do(t, http.MethodPut, "/api/plan/dates", map[string]string{"startDate": "2025-05-01", "endDate": "2025-05-03"})
	require.Equal(t, http.StatusOK, status, string(raw))
	var view planner.View
	require.NoError(t, json.Unmarshal(raw, &view))
	assert.Len(t, view.Days, 3)

	status, raw = s.do(t, http.MethodGet, "/api/search?q=seoul", nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	assert.Contains(t, string(raw), `"palace"`)

	status, raw = s.do(t, http.MethodPost, "/api/plan/days/1/places", map[string]any{"placeId": "acc", "placeType": 1})
	require.Equal(t, http.StatusCreated, status, string(raw))
	status, raw = s.do(t, http.MethodPost, "/api/plan/days/1/places", map[string]any{"placeId": "palace", "placeType": 2})
	require.Equal(t, http.StatusCreated, status, string(raw))

	status, raw = s.do(t, http.MethodPost, "/api/plan/days/2/places", map[string]any{"placeId": "palace", "placeType": 2})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, apperr.CodeConflict, errorCode(t, raw))

	status, _ = s.do(t, http.MethodPut, "/api/plan/details", planner.Details{Title: "Seoul", CityID: 1, FriendUserIDs: []int64{3}})
	require.Equal(t, http.StatusOK, status)

	status, raw = s.do(t, http.MethodPost, "/api/plan/submit", nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	assert.JSONEq(t, `{"tripId":7}`, string(raw))

	require.Len(t, s.backend.submitted, 1)
	req := s.backend.submitted[0]
	assert.Equal(t, "Seoul", req.Title)
	assert.Equal(t, "2025-05-01T00:00:00.000Z", req.StartDate)
	require.Len(t, req.Places, 2)
	assert.Equal(t, 1, req.Places[0].PlaceType)
	assert.Equal(t, 2, req.Places[1].Order)

	status, raw = s.do(t, http.MethodGet, "/api/plan", nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(raw, &view))
	assert.Empty(t, view.Days)
}

func TestPlanValidation(t *testing.T) {
	s := newStack(t)

	status, raw := s.do(t, http.MethodPut, "/api/plan/dates", map[string]string{"startDate": "May 1", "endDate": "2025-05-03"})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, apperr.CodeValidation, errorCode(t, raw))

	status, raw = s.do(t, http.MethodPut, "/api/plan/dates", map[string]string{"startDate": "2025-05-03", "endDate": "2025-05-01"})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, apperr.CodeValidation, errorCode(t, raw))

	status, raw = s.do(t, http.MethodPost, "/api/plan/days/0/places", map[string]any{"placeId": "acc", "placeType": 1})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, apperr.CodeBadRequest, errorCode(t, raw))

	status, _ = s.do(t, http.MethodPost, "/api/plan/submit", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
}

func existingPlan() backend.PlanRequest {
	return backend.PlanRequest{
		CityID:    1,
		Title:     "Busan",
		StartDate: "2025-05-01T00:00:00.000Z",
		EndDate:   "2025-05-02T00:00:00.000Z",
		Places: []backend.PlanPlace{
			{PlaceID: "acc", Name: "Acc", Day: 1, Order: 1, PlaceType: 1, Latitude: 35.0, Longitude: 129.0},
			{PlaceID: "a", Name: "A", Day: 1, Order: 2, PlaceType: 2, Latitude: 35.2, Longitude: 129.1},
		},
	}
}

func TestEditFlow(t *testing.T) {
	s := newStack(t)

	status, raw := s.do(t, http.MethodPost, "/api/trips/42/edit", existingPlan())
	require.Equal(t, http.StatusOK, status, string(raw))
	assert.Equal(t, int32(1), s.backend.acquires.Load())
	assert.True(t, s.lock.IsEditing())

	status, raw = s.do(t, http.MethodGet, "/api/edit/status", nil)
	require.Equal(t, http.StatusOK, status)
	var es struct {
		Server backend.LockStatus `json:"server"`
		Local  editlock.Status    `json:"local"`
	}
	require.NoError(t, json.Unmarshal(raw, &es))
	assert.True(t, es.Server.Locked)
	assert.True(t, es.Local.Editing)

	status, _ = s.do(t, http.MethodDelete, "/api/plan/days/1/places/a", nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = s.do(t, http.MethodDelete, "/api/edit", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, int32(1), s.backend.releases.Load())

	status, raw = s.do(t, http.MethodDelete, "/api/plan/days/1", nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, apperr.CodeLockRequired, errorCode(t, raw))

	status, _ = s.do(t, http.MethodPost, "/api/edit", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, int32(2), s.backend.acquires.Load())
}

func TestEditConflict(t *testing.T) {
	s := newStack(t)

	status, raw := s.do(t, http.MethodPost, "/api/trips/43/edit", existingPlan())
	assert.Equal(t, http.StatusConflict, status)

	var body struct {
		Code    string         `json:"code"`
		Details map[string]any `json:"details"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, apperr.CodeConflict, body.Code)
	assert.Equal(t, float64(7), body.Details["currentOwner"])

	owner, ok := s.lock.CurrentOwner()
	assert.True(t, ok)
	assert.Equal(t, int64(7), owner)
	assert.Zero(t, s.planner.TripID())
}

func TestEditRequestedTwice(t *testing.T) {
	s := newStack(t)
	gate := make(chan struct{})
	release := sync.OnceFunc(func() { close(gate) })
	t.Cleanup(release)
	s.backend.mu.Lock()
	s.backend.gate = gate
	s.backend.mu.Unlock()

	body, err := json.Marshal(existingPlan())
	require.NoError(t, err)
	first := make(chan int, 1)
	go func() {
		resp, err := http.Post(s.server.URL+"/api/trips/42/edit", "application/json", bytes.NewReader(body))
		if err != nil {
			first <- 0
			return
		}
		resp.Body.Close()
		first <- resp.StatusCode
	}()
	require.Eventually(t, func() bool { return s.lock.State() == editlock.Acquiring }, 2*time.Second, 5*time.Millisecond)

	status, raw := s.do(t, http.MethodPost, "/api/trips/42/edit", existingPlan())
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, apperr.CodeBusy, errorCode(t, raw))

	release()
	assert.Equal(t, http.StatusOK, <-first)
	assert.Equal(t, int32(1), s.backend.acquires.Load())
	assert.True(t, s.lock.IsEditing())
}

func TestListTrips(t *testing.T) {
	s := newStack(t)

	status, raw := s.do(t, http.MethodGet, "/api/trips", nil)
	require.Equal(t, http.StatusOK, status)
	var body struct {
		Trips []backend.TripStory `json:"trips"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))
	require.Len(t, body.Trips, 1)
	trip := body.Trips[0]
	assert.Equal(t, int64(42), trip.ID)
	assert.Equal(t, "제주 여행", trip.Title)
	assert.Equal(t, "2023-05-15 ~ 2023-05-17", trip.Period)
	assert.Equal(t, []int64{5}, trip.Participants)
	assert.True(t, trip.Step1Completed)
	assert.True(t, trip.Editable)

	s.backend.expired.Store(true)
	status, raw = s.do(t, http.MethodGet, "/api/trips", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, apperr.CodeUnauthorized, errorCode(t, raw))
}

func TestNicknameCheck(t *testing.T) {
	s := newStack(t)

	status, raw := s.do(t, http.MethodGet, "/api/nickname/check?nickname=a", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Contains(t, string(raw), "최소 2자")

	status, raw = s.do(t, http.MethodGet, "/api/nickname/check?nickname=taken", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(raw), `"available":false`)

	status, raw = s.do(t, http.MethodGet, "/api/nickname/check?nickname=traveler", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(raw), `"available":true`)
}

func TestSession(t *testing.T) {
	s := newStack(t)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "5"}).SignedString([]byte("secret"))
	require.NoError(t, err)

	status, raw := s.do(t, http.MethodPut, "/api/session", map[string]string{"token": token})
	require.Equal(t, http.StatusOK, status, string(raw))
	assert.JSONEq(t, `{"authenticated":true,"userId":5}`, string(raw))

	status, _ = s.do(t, http.MethodPut, "/api/session", map[string]string{"token": "not-a-jwt"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, raw = s.do(t, http.MethodGet, "/api/session", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"authenticated":false}`, string(raw))
}

func readMessage(t *testing.T, conn *gws.Conn) websocket.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg struct {
		Type    websocket.MessageType `json:"type"`
		Payload json.RawMessage       `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	return websocket.Message{Type: msg.Type, Payload: msg.Payload}
}

func TestWebSocket(t *testing.T) {
	s := newStack(t)

	url := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/api/ws"
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, websocket.TypeSnapshot, readMessage(t, conn).Type)
	assert.Equal(t, websocket.TypePlanChanged, readMessage(t, conn).Type)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, websocket.TypePong, readMessage(t, conn).Type)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "marker.click", "payload": map[string]string{"markerId": "gone"}}))
	msg := readMessage(t, conn)
	assert.Equal(t, websocket.TypeError, msg.Type)
	assert.Contains(t, string(msg.Payload.(json.RawMessage)), "COMMAND_FAILED")

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "map.sync"}))
	assert.Equal(t, websocket.TypeSnapshot, readMessage(t, conn).Type)
}

func TestWebSocket_ChangeDuringConnect(t *testing.T) {
	s := newStack(t)

	url := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/api/ws"
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	status, raw := s.do(t, http.MethodPut, "/api/plan/dates", map[string]string{"startDate": "2025-05-01", "endDate": "2025-05-03"})
	require.Equal(t, http.StatusOK, status, string(raw))

	// Either the initial plan or a later broadcast carries the new days.
	for {
		msg := readMessage(t, conn)
		if msg.Type != websocket.TypePlanChanged {
			continue
		}
		var view planner.View
		require.NoError(t, json.Unmarshal(msg.Payload.(json.RawMessage), &view))
		if len(view.Days) == 3 {
			return
		}
	}
}
