package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/OFFIS-RIT/amphora/backend/internal/queue"
	mid "github.com/OFFIS-RIT/amphora/backend/internal/server/middleware"
	"github.com/OFFIS-RIT/amphora/backend/pkg/common"
	"github.com/OFFIS-RIT/amphora/backend/pkg/graph"
	"github.com/OFFIS-RIT/amphora/backend/pkg/store/memory"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rabbitmq/amqp091-go"
)

const (
	masterKey = "master-secret"
	jwtSecret = "jwt-secret"
)

type recordingQueue struct {
	keys   []string
	bodies [][]byte
}

func (q *recordingQueue) Publish(exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error {
	q.keys = append(q.keys, key)
	q.bodies = append(q.bodies, msg.Body)
	return nil
}

type testServer struct {
	e     *echo.Echo
	graph *graph.GraphClient
	queue *recordingQueue
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	g, err := graph.NewGraphClient(graph.NewGraphClientParams{Store: memory.New()})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := g.EnsureSystemVocabulary(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	q := &recordingQueue{}
	app := &mid.App{
		Graph: g,
		Queue: q,
		Keyfunc: func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
			}
			return []byte(jwtSecret), nil
		},
		ExportPrefix:   "archives",
		MasterAPIKey:   masterKey,
		MasterUserID:   "curator-1",
		MasterUserRole: "admin",
	}
	return &testServer{e: New(app), graph: g, queue: q}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 && rec.Header().Get(echo.HeaderContentType) != echo.MIMETextPlainCharsetUTF8 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec.Code, out
}

func (s *testServer) concept(t *testing.T, name, conceptURI string) int64 {
	t.Helper()
	id, err := s.graph.CreateEntity(context.Background(), &common.ConceptEntity{
		EntityBase: common.EntityBase{Name: name},
		ConceptURI: conceptURI,
	})
	if err != nil {
		t.Fatalf("failed to create concept: %v", err)
	}
	return id
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	claims["exp"] = time.Now().Add(time.Hour).Unix()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(jwtSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	if code, _ := s.do(t, http.MethodGet, "/health", "", nil); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestAuth(t *testing.T) {
	s := newTestServer(t)
	id := s.concept(t, "Darwin", "")
	path := fmt.Sprintf("/api/entities/%d", id)

	reader := signToken(t, jwt.MapClaims{"sub": "reader-7", "role": "user"})
	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		want   int
	}{
		{"missing token", http.MethodGet, path, "", nil, http.StatusUnauthorized},
		{"bad token", http.MethodGet, path, "not-a-jwt", nil, http.StatusUnauthorized},
		{"jwt read", http.MethodGet, path, reader, nil, http.StatusOK},
		{"jwt without permission", http.MethodPost, "/api/entities", reader, map[string]any{"kind": "concept"}, http.StatusForbidden},
		{"master key", http.MethodGet, path, masterKey, nil, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, _ := s.do(t, tt.method, tt.path, tt.token, tt.body); code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, code)
			}
		})
	}
}

func TestCreateEntityRecordsCurator(t *testing.T) {
	s := newTestServer(t)
	token := signToken(t, jwt.MapClaims{"id": "42", "permissions": []string{"entity.create"}})

	code, body := s.do(t, http.MethodPost, "/api/entities", token, map[string]any{
		"kind":       "value",
		"value_type": "text",
		"payload":    "Café",
	})
	if code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %v", code, body)
	}
	entity := body["entity"].(map[string]any)
	if entity["created_by"] != "42" {
		t.Fatalf("expected created_by 42, got %v", entity["created_by"])
	}
	if entity["payload"] != "Café" {
		t.Fatalf("expected canonical payload, got %v", entity["payload"])
	}

	code, _ = s.do(t, http.MethodPost, "/api/entities", token, map[string]any{
		"kind":       "value",
		"value_type": "int",
		"payload":    "twelve",
	})
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad payload, got %d", code)
	}
}

func TestMergeAndIdentity(t *testing.T) {
	s := newTestServer(t)
	a := s.concept(t, "Darwin", "")
	b := s.concept(t, "C. Darwin", "")

	code, body := s.do(t, http.MethodPost, "/api/concepts/merge", masterKey, map[string]any{"ids": []int64{b, a}})
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", code, body)
	}
	if int64(body["representative"].(float64)) != a {
		t.Fatalf("expected representative %d, got %v", a, body["representative"])
	}

	code, body = s.do(t, http.MethodGet, fmt.Sprintf("/api/concepts/%d/identity", b), masterKey, nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	members := body["cluster"].(map[string]any)["members"].([]any)
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %v", members)
	}
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t)
	a := s.concept(t, "Darwin", "http://viaf.org/viaf/1")
	b := s.concept(t, "Darwin", "http://viaf.org/viaf/2")

	tests := []struct {
		name    string
		method  string
		path    string
		body    any
		want    int
		wantIDs bool
	}{
		{"too few ids", http.MethodPost, "/api/concepts/merge", map[string]any{"ids": []int64{a}}, http.StatusBadRequest, false},
		{"conflicting concepts", http.MethodPost, "/api/concepts/merge", map[string]any{"ids": []int64{a, b}}, http.StatusConflict, true},
		{"missing entity", http.MethodGet, "/api/entities/9999", nil, http.StatusNotFound, false},
		{"unbounded relation query", http.MethodGet, "/api/relations", nil, http.StatusBadRequest, false},
		{"half a ref", http.MethodGet, "/api/relations?source_kind=concept", nil, http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := s.do(t, tt.method, tt.path, masterKey, tt.body)
			if code != tt.want {
				t.Fatalf("expected %d, got %d: %v", tt.want, code, body)
			}
			if _, ok := body["ids"]; ok != tt.wantIDs {
				t.Fatalf("expected ids present=%v, got %v", tt.wantIDs, body)
			}
		})
	}
}

func TestRelationsRoundTrip(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	a := s.concept(t, "Darwin", "")
	b := s.concept(t, "Henslow", "")
	field, err := s.graph.EnsureField(ctx, graph.TypeParams{URI: "http://xmlns.com/foaf/0.1/knows", Name: "knows"})
	if err != nil {
		t.Fatalf("failed to create field: %v", err)
	}

	code, body := s.do(t, http.MethodPost, "/api/relations", masterKey, map[string]any{
		"source":       map[string]any{"kind": "concept", "id": a},
		"predicate_id": field.ID,
		"target":       map[string]any{"kind": "concept", "id": b},
	})
	if code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %v", code, body)
	}

	code, body = s.do(t, http.MethodGet, fmt.Sprintf("/api/relations?source_kind=concept&source_id=%d", a), masterKey, nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", code, body)
	}
	if rels := body["relations"].([]any); len(rels) != 1 {
		t.Fatalf("expected 1 relation, got %v", rels)
	}
}

func TestAsyncJobsAreQueued(t *testing.T) {
	s := newTestServer(t)
	a := s.concept(t, "Darwin", "")
	b := s.concept(t, "C. Darwin", "")

	tests := []struct {
		path  string
		body  any
		queue string
	}{
		{"/api/concepts/merge", map[string]any{"ids": []int64{a, b}, "async": true}, queue.MergeQueue},
		{fmt.Sprintf("/api/concepts/%d/isolate", a), map[string]any{"async": true}, queue.IsolateQueue},
		{fmt.Sprintf("/api/entities/%d/prune", a), map[string]any{"async": true}, queue.PruneQueue},
		{"/api/exports", map[string]any{"roots": []int64{a}, "manifest": true}, queue.ExportQueue},
	}

	for i, tt := range tests {
		t.Run(tt.queue, func(t *testing.T) {
			code, body := s.do(t, http.MethodPost, tt.path, masterKey, tt.body)
			if code != http.StatusAccepted {
				t.Fatalf("expected 202, got %d: %v", code, body)
			}
			if len(s.queue.keys) != i+1 || s.queue.keys[i] != tt.queue {
				t.Fatalf("expected publish to %s, got %v", tt.queue, s.queue.keys)
			}
			var msg struct {
				CorrelationID string `json:"correlation_id"`
			}
			if err := json.Unmarshal(s.queue.bodies[i], &msg); err != nil {
				t.Fatalf("failed to decode job: %v", err)
			}
			if msg.CorrelationID == "" || msg.CorrelationID != body["correlation_id"] {
				t.Fatalf("expected correlation id %v in job, got %q", body["correlation_id"], msg.CorrelationID)
			}
		})
	}

	rep, err := s.graph.CurrentRepresentative(context.Background(), b)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if rep != b {
		t.Fatalf("expected queued merge not to run inline, got representative %d", rep)
	}
}

func TestCreateExportKeyUsesPrefix(t *testing.T) {
	s := newTestServer(t)
	a := s.concept(t, "Darwin", "")

	code, body := s.do(t, http.MethodPost, "/api/exports", masterKey, map[string]any{"roots": []int64{a, a}})
	if code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %v", code, body)
	}
	id, _ := body["correlation_id"].(string)
	want := "archives/" + queue.ExportKey(id)
	if body["key"] != want {
		t.Fatalf("expected key %q, got %v", want, body["key"])
	}

	var msg queue.ExportJobMsg
	if err := json.Unmarshal(s.queue.bodies[0], &msg); err != nil {
		t.Fatalf("failed to decode job: %v", err)
	}
	if len(msg.Roots) != 1 || msg.Roots[0] != a {
		t.Fatalf("expected deduplicated roots [%d], got %v", a, msg.Roots)
	}
}
