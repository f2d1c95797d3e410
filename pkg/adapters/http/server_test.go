package http_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/consult/internal/testutils"
	consulthttp "github.com/aretw0/consult/pkg/adapters/http"
	"github.com/aretw0/consult/pkg/adapters/memory"
	"github.com/aretw0/consult/pkg/domain"
	"github.com/aretw0/consult/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sessionBody struct {
	ID              string            `json:"id"`
	Phase           string            `json:"phase"`
	History         []string          `json:"history"`
	CurrentQuestion string            `json:"current_question"`
	Answers         map[string]*bool  `json:"answers"`
	Conclusions     []string          `json:"conclusions"`
	Finished        bool              `json:"finished"`
	Caveats         []json.RawMessage `json:"caveats"`
}

func newTestServer(t *testing.T, svc *testutils.FakeService) (http.Handler, *session.Manager) {
	t.Helper()
	mgr := session.NewManager(svc, memory.NewStore())
	return consulthttp.NewHandler(mgr, consulthttp.WithVersion("v1.2.3\n")), mgr
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeSession(t *testing.T, w *httptest.ResponseRecorder) sessionBody {
	t.Helper()
	var s sessionBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s), w.Body.String())
	return s
}

func TestServer_Consultation(t *testing.T) {
	h, _ := newTestServer(t, testutils.Linear("Eビザ申請可", "Q1", "Q2"))

	w := do(t, h, http.MethodPost, "/sessions", `{"targets":["E"]}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeSession(t, w)
	assert.Equal(t, "/sessions/"+created.ID, w.Header().Get("Location"))
	assert.Equal(t, "awaiting_answer", created.Phase)
	assert.Equal(t, []string{"Q1"}, created.History)
	base := "/sessions/" + created.ID

	w = do(t, h, http.MethodPost, base+"/answer", `{"question":"Q1","answer":"unknown"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	s := decodeSession(t, w)
	assert.Equal(t, "Q2", s.CurrentQuestion)
	require.Contains(t, s.Answers, "Q1")
	assert.Nil(t, s.Answers["Q1"], "unknown is encoded as null")

	w = do(t, h, http.MethodPost, base+"/answer", `{"question":"Q2","answer":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	s = decodeSession(t, w)
	assert.True(t, s.Finished)
	assert.Equal(t, "finished", s.Phase)
	assert.Equal(t, []string{"Eビザ申請可"}, s.Conclusions)

	w = do(t, h, http.MethodPost, base+"/back", "")
	require.Equal(t, http.StatusOK, w.Code)
	s = decodeSession(t, w)
	assert.Equal(t, []string{"Q1"}, s.History)
	assert.False(t, s.Finished)

	w = do(t, h, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Q1", decodeSession(t, w).CurrentQuestion)

	w = do(t, h, http.MethodPost, base+"/restart", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "idle", decodeSession(t, w).Phase)

	w = do(t, h, http.MethodGet, "/sessions", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"sessions":["`+created.ID+`"]}`, w.Body.String())

	w = do(t, h, http.MethodDelete, base, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, h, http.MethodGet, base, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_ErrorMapping(t *testing.T) {
	svc := testutils.Linear("c", "Q1", "Q2")
	h, mgr := newTestServer(t, svc)
	id, _, err := mgr.Create(context.Background(), []domain.Target{"E"})
	require.NoError(t, err)
	base := "/sessions/" + id

	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		wantCode int
		wantErr  string
	}{
		{"Invalid target", http.MethodPost, "/sessions", `{"targets":["X"]}`, http.StatusBadRequest, "invalid_target"},
		{"Partial multi target", http.MethodPost, base + "/start", `{"targets":["E","L"]}`, http.StatusBadRequest, "invalid_target"},
		{"Missing answer", http.MethodPost, base + "/answer", `{"question":"Q1"}`, http.StatusBadRequest, "invalid_answer"},
		{"Bad answer value", http.MethodPost, base + "/answer", `{"question":"Q1","answer":"maybe"}`, http.StatusBadRequest, "bad_request"},
		{"Stale answer", http.MethodPost, base + "/answer", `{"question":"Q9","answer":true}`, http.StatusConflict, "stale_answer"},
		{"Unknown session", http.MethodPost, "/sessions/nope/back", "", http.StatusNotFound, "not_found"},
		{"Malformed body", http.MethodPost, base + "/start", `{`, http.StatusBadRequest, "bad_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
			var e consulthttp.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
			assert.Equal(t, tt.wantErr, e.Code)
		})
	}

	t.Run("Service down", func(t *testing.T) {
		svc.Err = errors.New("connection refused")
		defer func() { svc.Err = nil }()
		w := do(t, h, http.MethodPost, base+"/answer", `{"question":"Q1","answer":false}`)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestStatusFor(t *testing.T) {
	code, name := consulthttp.StatusFor(domain.ErrSessionBusy)
	assert.Equal(t, http.StatusLocked, code)
	assert.Equal(t, "session_busy", name)

	code, _ = consulthttp.StatusFor(errors.Join(domain.ErrServiceUnavailable, domain.ErrSessionNotFound))
	assert.Equal(t, http.StatusServiceUnavailable, code, "transport failure wins")

	code, _ = consulthttp.StatusFor(domain.ErrSuperseded)
	assert.Equal(t, http.StatusConflict, code)
}

func TestServer_Trace(t *testing.T) {
	svc := testutils.Linear("c", "Q1", "Q2")
	fail := false
	svc.TraceFunc = func(string) (*domain.TraceSnapshot, error) {
		if fail {
			return nil, errors.New("timeout")
		}
		return &domain.TraceSnapshot{
			Rules:      []domain.Rule{{RuleID: "R1", IsFired: true, IsFireable: true}},
			FiredRules: []string{"R1"},
		}, nil
	}
	h, mgr := newTestServer(t, svc)
	id, _, err := mgr.Create(context.Background(), []domain.Target{"E"})
	require.NoError(t, err)

	w := do(t, h, http.MethodGet, "/sessions/"+id+"/trace", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"fired_count":1`)
	assert.Contains(t, w.Body.String(), `"stale":false`)

	fail = true
	w = do(t, h, http.MethodGet, "/sessions/"+id+"/trace", "")
	assert.Equal(t, http.StatusBadGateway, w.Code, "no trace cached between calls")
}

func TestServer_InfoAndTargets(t *testing.T) {
	h, _ := newTestServer(t, testutils.Linear("c", "Q1"))

	w := do(t, h, http.MethodGet, "/health", "")
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = do(t, h, http.MethodGet, "/info", "")
	assert.JSONEq(t, `{"app":"consult-http","version":"v1.2.3"}`, w.Body.String())

	w = do(t, h, http.MethodGet, "/targets", "")
	require.Equal(t, http.StatusOK, w.Code)
	var infos []domain.TargetInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &infos))
	require.Len(t, infos, 3)
	assert.Equal(t, domain.Target("E"), infos[0].ID)

	w = do(t, h, http.MethodOptions, "/sessions", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_SubscribeEvents(t *testing.T) {
	h, mgr := newTestServer(t, testutils.Linear("c", "Q1", "Q2"))
	id, _, err := mgr.Create(context.Background(), []domain.Target{"E"})
	require.NoError(t, err)

	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sessions/"+id+"/events?watch=history", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	next := func(prefix string) string {
		for lines.Scan() {
			if strings.HasPrefix(lines.Text(), prefix) {
				return lines.Text()
			}
		}
		t.Fatalf("stream ended before %q: %v", prefix, lines.Err())
		return ""
	}
	assert.Equal(t, "event: ping", next("event:"))

	post := func(path, body string) {
		r, err := http.Post(srv.URL+"/sessions/"+id+path, "application/json", bytes.NewBufferString(body))
		require.NoError(t, err)
		r.Body.Close()
		require.Equal(t, http.StatusOK, r.StatusCode)
	}
	post("/answer", `{"question":"Q1","answer":true}`)

	data := next("data:")
	assert.Contains(t, data, `"appended":["Q2"]`)
	assert.Contains(t, data, `"answers":{"Q1":"yes"}`)
}

func TestStreamManager(t *testing.T) {
	sm := consulthttp.NewStreamManager(nil)
	ch, cancel := sm.Subscribe("s1")
	assert.Equal(t, 1, sm.Subscribers("s1"))

	sm.Broadcast("s1", "hello")
	sm.Broadcast("other", "ignored")
	assert.Equal(t, "hello", <-ch)

	cancel()
	cancel()
	assert.Zero(t, sm.Subscribers("s1"))
	_, open := <-ch
	assert.False(t, open)
}
