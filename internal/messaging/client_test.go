package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSendMessage(t *testing.T) {
	var got sendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/conversations/ext-1/messages" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sendResponse{MessageID: "m-9"})
	}))
	defer srv.Close()

	id, err := New(srv.URL, "tok", 0).SendMessage(context.Background(), "ext-1", "hello")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if id != "m-9" {
		t.Errorf("message id = %q", id)
	}
	if got.Text != "hello" || got.Author != "business" {
		t.Errorf("request = %+v", got)
	}
}

func TestSendMessage_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if _, err := New(srv.URL, "", 0).SendMessage(context.Background(), "c", "x"); err == nil {
		t.Fatal("expected error on 502")
	}
}

func TestTransferToHuman(t *testing.T) {
	var got transferRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/conversations/ext-2/pass-control" {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if err := New(srv.URL, "", 0).TransferToHuman(context.Background(), "ext-2", "max interactions reached"); err != nil {
		t.Fatalf("TransferToHuman: %v", err)
	}
	if got.Reason != "max interactions reached" {
		t.Errorf("reason = %q", got.Reason)
	}
}

func TestTransferToHuman_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	if err := New(srv.URL, "", 0).TransferToHuman(context.Background(), "c", "r"); err == nil {
		t.Fatal("expected error on 409")
	}
}
