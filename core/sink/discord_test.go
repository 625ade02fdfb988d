package sink

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"
)

type discordStub struct {
	mu       sync.Mutex
	created  int
	messages []webhookMessage
	deleted  []string
	existing []webhookResponse
}

func (d *discordStub) createdCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.created
}

func (d *discordStub) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/channels/c1/webhooks", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bot token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		d.mu.Lock()
		defer d.mu.Unlock()
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(d.existing)
		case http.MethodPost:
			d.created++
			json.NewEncoder(w).Encode(webhookResponse{ID: "wh1", Name: "Lyrics Bot", Token: "tok"})
		}
	})
	mux.HandleFunc("/webhooks/wh1/tok", func(w http.ResponseWriter, r *http.Request) {
		var msg webhookMessage
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			t.Errorf("decode: %v", err)
		}
		d.mu.Lock()
		d.messages = append(d.messages, msg)
		d.mu.Unlock()
		if r.URL.Query().Get("wait") == "true" {
			json.NewEncoder(w).Encode(map[string]string{"id": "m42"})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/webhooks/wh1/tok/messages/", func(w http.ResponseWriter, r *http.Request) {
		d.mu.Lock()
		d.deleted = append(d.deleted, strings.TrimPrefix(r.URL.Path, "/webhooks/wh1/tok/messages/"))
		d.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/webhooks/gone/tok", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	return mux
}

func TestWebhookFactoryCreatesAndSends(t *testing.T) {
	stub := &discordStub{}
	srv := httptest.NewServer(stub.handler(t))
	defer srv.Close()

	f := NewWebhookFactory(srv.URL, "token", "Lyrics Bot")
	s, err := f.Create(context.Background(), "c1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if n := stub.createdCount(); n != 1 {
		t.Fatalf("expected webhook to be created, got %d", n)
	}

	long := strings.Repeat("歌", 100)
	if err := s.Send(context.Background(), Message{Text: "line", Username: long, AvatarURL: "http://img"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	stub.mu.Lock()
	defer stub.mu.Unlock()
	if len(stub.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(stub.messages))
	}
	got := stub.messages[0]
	if got.Content != "line" || got.AvatarURL != "http://img" {
		t.Errorf("unexpected message: %+v", got)
	}
	if n := utf8.RuneCountInString(got.Username); n != 80 {
		t.Errorf("username has %d runes, want 80", n)
	}
}

func TestWebhookFactoryReusesExisting(t *testing.T) {
	stub := &discordStub{existing: []webhookResponse{
		{ID: "other", Name: "Someone", Token: "x"},
		{ID: "wh1", Name: "Lyrics Bot", Token: "tok"},
	}}
	srv := httptest.NewServer(stub.handler(t))
	defer srv.Close()

	f := NewWebhookFactory(srv.URL, "token", "Lyrics Bot")
	if _, err := f.Create(context.Background(), "c1"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if n := stub.createdCount(); n != 0 {
		t.Errorf("existing webhook should be reused, created %d", n)
	}
}

func TestWebhookSearchingIsRemoved(t *testing.T) {
	stub := &discordStub{}
	srv := httptest.NewServer(stub.handler(t))
	defer srv.Close()

	w := NewWebhook(srv.URL + "/webhooks/wh1/tok")
	remove, err := w.ShowSearching(context.Background(), Message{Text: "searching..."})
	if err != nil {
		t.Fatalf("show searching: %v", err)
	}
	if err := remove(context.Background()); err != nil {
		t.Fatalf("remove: %v", err)
	}

	stub.mu.Lock()
	defer stub.mu.Unlock()
	if len(stub.deleted) != 1 || stub.deleted[0] != "m42" {
		t.Errorf("deleted = %v, want [m42]", stub.deleted)
	}
}

func TestWebhookGone(t *testing.T) {
	stub := &discordStub{}
	srv := httptest.NewServer(stub.handler(t))
	defer srv.Close()

	w := NewWebhook(srv.URL + "/webhooks/gone/tok")
	if err := w.Send(context.Background(), Message{Text: "x"}); err != ErrInvalidSink {
		t.Fatalf("expected ErrInvalidSink, got %v", err)
	}
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 80, "short"},
		{"abcdef", 3, "abc"},
		{"歌词歌词", 2, "歌词"},
	}
	for _, tt := range tests {
		if got := truncateRunes(tt.in, tt.n); got != tt.want {
			t.Errorf("truncateRunes(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
