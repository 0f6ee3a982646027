package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWebhookNotify(t *testing.T) {
	var gotToken, gotMessage, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("Content-Type")
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotToken = r.PostForm.Get("token")
		gotMessage = r.PostForm.Get("message")
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, "tok123")
	if err := w.Notify(context.Background(), "disk 1.1 degraded"); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	if gotType != "application/x-www-form-urlencoded" {
		t.Errorf("content type = %q", gotType)
	}
	if gotToken != "tok123" || gotMessage != "disk 1.1 degraded" {
		t.Errorf("form = token %q message %q", gotToken, gotMessage)
	}
}

func TestWebhookNotifyErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL, "bad").Notify(context.Background(), "x")
	if err == nil {
		t.Fatal("expected error for 401 reply")
	}
}

func TestDiscard(t *testing.T) {
	var n Notifier = Discard{}
	if err := n.Notify(context.Background(), "x"); err != nil {
		t.Errorf("Discard.Notify returned %v", err)
	}
}
