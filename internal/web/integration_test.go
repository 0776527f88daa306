package web_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/mealsnap/internal/blobstore/memory"
	"github.com/vbonduro/mealsnap/internal/domain"
	"github.com/vbonduro/mealsnap/internal/events"
	"github.com/vbonduro/mealsnap/internal/photostore"
	"github.com/vbonduro/mealsnap/internal/service"
	"github.com/vbonduro/mealsnap/internal/store"
	"github.com/vbonduro/mealsnap/internal/vision"
	"github.com/vbonduro/mealsnap/internal/web"
)

// recordingVision captures the image bytes passed to it and returns a
// pre-configured result.
type recordingVision struct {
	mu        sync.Mutex
	lastBytes []byte
	est       *vision.Estimate
	err       error
	configErr error
}

func (r *recordingVision) Analyze(_ context.Context, rd io.Reader, _ string) (*vision.Estimate, error) {
	data, err := io.ReadAll(rd)
	if err != nil {
		return nil, fmt.Errorf("recordingVision: read image: %w", err)
	}
	r.mu.Lock()
	r.lastBytes = data
	r.mu.Unlock()
	return r.est, r.err
}

func (r *recordingVision) CheckConfig() error { return r.configErr }

func (r *recordingVision) LastBytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastBytes
}

// memPhotoStore is a simple in-memory implementation of photostore.PhotoStore.
type memPhotoStore struct {
	mu    sync.Mutex
	data  map[string][]byte
	mimes map[string]string
}

func newMemPhotoStore() *memPhotoStore {
	return &memPhotoStore{
		data:  make(map[string][]byte),
		mimes: make(map[string]string),
	}
}

func (m *memPhotoStore) Save(_ context.Context, mealID, mimeType string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[mealID] = data
	m.mimes[mealID] = mimeType
	return nil
}

func (m *memPhotoStore) Get(_ context.Context, mealID string) (io.ReadCloser, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.data[mealID]
	if !ok {
		return nil, "", photostore.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), m.mimes[mealID], nil
}

func (m *memPhotoStore) Delete(_ context.Context, mealID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[mealID]; !ok {
		return photostore.ErrNotFound
	}
	delete(m.data, mealID)
	delete(m.mimes, mealID)
	return nil
}

type testEnv struct {
	srv    *httptest.Server
	vision *recordingVision
	broker *events.Broker
}

// newTestServer sets up a real web.Server backed by an in-memory blob store
// and the provided vision stub.
func newTestServer(t *testing.T, debug bool) *testEnv {
	t.Helper()
	broker := events.NewBroker()
	meals := store.NewMealStore(memory.New(), store.WithNotifier(broker))
	vis := &recordingVision{est: &vision.Estimate{Name: "焼き魚定食", Calories: 650, Protein: 20, Fat: 18, Carbs: 80, Confidence: 0.85}}
	svc := service.NewMealService(meals, vis, newMemPhotoStore(), slog.Default(), service.WithImageRetention(true))

	srv := httptest.NewServer(web.NewServer(svc, broker, debug, slog.Default()))
	t.Cleanup(func() {
		broker.Close()
		srv.Close()
	})
	return &testEnv{srv: srv, vision: vis, broker: broker}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 16, 16))))
	return buf.Bytes()
}

func dataURL(data []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func doRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

type errorBody struct {
	Error string            `json:"error"`
	Debug map[string]string `json:"debug"`
}

func saveMeal(t *testing.T, env *testEnv, body map[string]any) domain.MealRecord {
	t.Helper()
	resp := postJSON(t, env.srv.URL+"/api/meals", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[domain.MealRecord](t, resp)
}

func fishBody() map[string]any {
	return map[string]any{
		"name": "焼き魚定食", "calories": 650, "protein": 20, "fat": 18, "carbs": 80, "confidence": 0.85,
	}
}

func TestIntegration_Analyze(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	env := newTestServer(t, false)
	img := pngBytes(t)

	for _, path := range []string{"/api/analyze", "/api/analyze-meal"} {
		t.Run(path, func(t *testing.T) {
			resp := postJSON(t, env.srv.URL+path, map[string]string{"image": dataURL(img)})
			require.Equal(t, http.StatusOK, resp.StatusCode)

			est := decode[vision.Estimate](t, resp)
			assert.Equal(t, "焼き魚定食", est.Name)
			assert.Equal(t, 650.0, est.Calories)
			assert.Equal(t, img, env.vision.LastBytes())
		})
	}
}

func TestIntegration_AnalyzeErrors(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	tests := []struct {
		name       string
		body       any
		upstream   error
		configErr  error
		wantStatus int
		wantError  string
	}{
		{name: "no image", body: map[string]string{}, wantStatus: http.StatusBadRequest, wantError: "画像が提供されていません"},
		{name: "too large", body: map[string]string{"image": strings.Repeat("A", 5001*1024*4/3)}, wantStatus: http.StatusRequestEntityTooLarge},
		{name: "missing key", body: map[string]string{"image": "x"}, configErr: vision.NewError(vision.MissingCredentials, nil), wantStatus: http.StatusInternalServerError},
		{name: "unauthorized", body: map[string]string{"image": "PNG"}, upstream: vision.NewError(vision.UpstreamUnauthorized, errors.New("401")), wantStatus: http.StatusUnauthorized},
		{name: "rate limited", body: map[string]string{"image": "PNG"}, upstream: vision.NewError(vision.UpstreamRateLimited, errors.New("429")), wantStatus: http.StatusTooManyRequests},
		{name: "bad request", body: map[string]string{"image": "PNG"}, upstream: vision.NewError(vision.UpstreamBadRequest, errors.New("400")), wantStatus: http.StatusBadRequest},
		{name: "unknown", body: map[string]string{"image": "PNG"}, upstream: errors.New("connection reset"), wantStatus: http.StatusInternalServerError, wantError: "分析中にエラーが発生しました: connection reset"},
		{name: "malformed json", body: "not an object", wantStatus: http.StatusBadRequest},
		{name: "missing key before malformed json", body: "not an object", configErr: vision.NewError(vision.MissingCredentials, nil), wantStatus: http.StatusInternalServerError},
		{name: "missing key before empty body", body: map[string]string{}, configErr: vision.NewError(vision.MissingCredentials, nil), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestServer(t, false)
			env.vision.err = tt.upstream
			env.vision.configErr = tt.configErr

			body := tt.body
			if m, ok := body.(map[string]string); ok && m["image"] == "PNG" {
				body = map[string]string{"image": dataURL(pngBytes(t))}
			}

			resp := postJSON(t, env.srv.URL+"/api/analyze", body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			eb := decode[errorBody](t, resp)
			assert.NotEmpty(t, eb.Error)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, eb.Error)
			}
			assert.Nil(t, eb.Debug, "debug details are development only")
		})
	}
}

func TestIntegration_AnalyzeDebugInDevelopment(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	env := newTestServer(t, true)
	env.vision.err = vision.NewError(vision.UpstreamRateLimited, errors.New("slow down"))

	resp := postJSON(t, env.srv.URL+"/api/analyze", map[string]string{"image": dataURL(pngBytes(t))})
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	eb := decode[errorBody](t, resp)
	assert.Equal(t, "upstream_rate_limited", eb.Debug["kind"])
	assert.Equal(t, "slow down", eb.Debug["cause"])
}

func TestIntegration_MealLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	env := newTestServer(t, false)

	rec := saveMeal(t, env, fishBody())
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, time.Now().Format(domain.DateLayout), rec.Date)

	resp := doRequest(t, http.MethodGet, env.srv.URL+"/api/meals/"+rec.ID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, rec.ID, decode[domain.MealRecord](t, resp).ID)

	resp = doRequest(t, http.MethodGet, env.srv.URL+"/api/meals")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]domain.MealRecord](t, resp), 1)

	resp = doRequest(t, http.MethodDelete, env.srv.URL+"/api/meals/"+rec.ID)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doRequest(t, http.MethodGet, env.srv.URL+"/api/meals/"+rec.ID)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Deleting an unknown id is not an error.
	resp = doRequest(t, http.MethodDelete, env.srv.URL+"/api/meals/"+rec.ID)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestIntegration_SaveMealValidation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	env := newTestServer(t, false)

	bad := fishBody()
	bad["calories"] = -10
	resp := postJSON(t, env.srv.URL+"/api/meals", bad)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	noName := fishBody()
	delete(noName, "name")
	resp = postJSON(t, env.srv.URL+"/api/meals", noName)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, env.srv.URL+"/api/meals", "nope")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doRequest(t, http.MethodGet, env.srv.URL+"/api/meals")
	assert.Empty(t, decode[[]domain.MealRecord](t, resp))
}

func TestIntegration_TodayAndHistory(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	env := newTestServer(t, false)

	yesterday := fishBody()
	yesterday["captured_at"] = time.Now().Add(-24 * time.Hour).Format(time.RFC3339)
	saveMeal(t, env, yesterday)
	saveMeal(t, env, fishBody())
	saveMeal(t, env, fishBody())

	resp := doRequest(t, http.MethodGet, env.srv.URL+"/api/meals/today")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	today := decode[service.DaySummary](t, resp)
	assert.Len(t, today.Meals, 2)
	assert.Equal(t, 1300.0, today.Totals.Calories)
	assert.Equal(t, "57:14:29", today.Ratio.String())

	resp = doRequest(t, http.MethodGet, env.srv.URL+"/api/meals/history")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	history := decode[[]service.DaySummary](t, resp)
	require.Len(t, history, 2)
	assert.Greater(t, history[0].Date, history[1].Date)
	assert.Len(t, history[0].Meals, 2)
	assert.Len(t, history[1].Meals, 1)

	resp = doRequest(t, http.MethodGet, env.srv.URL+"/api/meals/history?days=1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]service.DaySummary](t, resp), 1)

	resp = doRequest(t, http.MethodGet, env.srv.URL+"/api/meals/history?days=soon")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doRequest(t, http.MethodDelete, env.srv.URL+"/api/meals")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doRequest(t, http.MethodGet, env.srv.URL+"/api/meals/history")
	assert.Empty(t, decode[[]service.DaySummary](t, resp))
}

func TestIntegration_MealPhoto(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	env := newTestServer(t, false)
	img := pngBytes(t)

	body := fishBody()
	body["image"] = dataURL(img)
	rec := saveMeal(t, env, body)
	assert.True(t, strings.HasPrefix(rec.Image, "data:image/jpeg;base64,"))

	resp := doRequest(t, http.MethodGet, env.srv.URL+"/api/meals/"+rec.ID+"/photo")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, img, got)

	resp = doRequest(t, http.MethodGet, env.srv.URL+"/api/meals/unknown/photo")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestIntegration_SecurityHeaders(t *testing.T) {
	env := newTestServer(t, false)

	resp := doRequest(t, http.MethodGet, env.srv.URL+"/healthz")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.NotEmpty(t, resp.Header.Get("Content-Security-Policy"))
}

func TestIntegration_EventStream(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	env := newTestServer(t, false)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.srv.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ": connected\n", line)

	rec := saveMeal(t, env, fishBody())

	var event, data string
	for data == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
	assert.Equal(t, "meals-changed", event)

	var change events.Change
	require.NoError(t, json.Unmarshal([]byte(data), &change))
	assert.Equal(t, events.MealSaved, change.Kind)
	assert.Equal(t, rec.ID, change.ID)
}

func TestServeShutdownWithOpenEventStream(t *testing.T) {
	broker := events.NewBroker()
	defer broker.Close()
	meals := store.NewMealStore(memory.New(), store.WithNotifier(broker))
	svc := service.NewMealService(meals, &recordingVision{}, nil, slog.Default())
	server := web.NewServer(svc, broker, false, slog.Default())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	served := make(chan error, 1)
	go func() { served <- server.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/api/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ": connected\n", line)

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down while an event stream was open")
	}
}

func TestServeShutdownWithOpenWebSocket(t *testing.T) {
	broker := events.NewBroker()
	defer broker.Close()
	meals := store.NewMealStore(memory.New(), store.WithNotifier(broker))
	svc := service.NewMealService(meals, &recordingVision{}, nil, slog.Default())
	server := web.NewServer(svc, broker, false, slog.Default())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	served := make(chan error, 1)
	go func() { served <- server.Serve(ctx, ln) }()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/api/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return broker.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down while a websocket was open")
	}
	require.Eventually(t, func() bool { return broker.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestIntegration_WebSocket(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	env := newTestServer(t, false)

	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return env.broker.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	rec := saveMeal(t, env, fishBody())
	resp := doRequest(t, http.MethodDelete, env.srv.URL+"/api/meals/"+rec.ID)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var saved, deleted events.Change
	require.NoError(t, conn.ReadJSON(&saved))
	require.NoError(t, conn.ReadJSON(&deleted))
	assert.Equal(t, events.MealSaved, saved.Kind)
	assert.Equal(t, events.MealDeleted, deleted.Kind)
	assert.Equal(t, rec.ID, deleted.ID)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	require.Eventually(t, func() bool { return env.broker.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}
