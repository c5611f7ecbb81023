package opensearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/loykin/asamgr/internal/history"
)

func TestOpenSearchSink_Send(t *testing.T) {
	var (
		body   []byte
		path   string
		method string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		path = r.URL.Path
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	}))
	defer server.Close()

	sink := New(server.URL+"/", "asa-history")
	if err := sink.Send(context.Background(), history.NewEvent(history.EventUpdate, 0, 7777, "app 2430930", nil)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if method != http.MethodPost || path != "/asa-history/_doc" {
		t.Fatalf("unexpected request %s %s", method, path)
	}
	var got history.Event
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got.Type != history.EventUpdate || got.Port != 7777 || got.Detail != "app 2430930" {
		t.Fatalf("unexpected document %+v", got)
	}
}

func TestOpenSearchSink_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	if err := New(server.URL, "idx").Send(context.Background(), history.Event{Type: history.EventStart}); err == nil {
		t.Fatal("expected error for 400 response")
	}
}
