package discord

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func capture(t *testing.T, status int) (*httptest.Server, *[]WebhookMessage) {
	t.Helper()
	var got []WebhookMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		var msg WebhookMessage
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		got = append(got, msg)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestNotifyImportSuccess(t *testing.T) {
	srv, got := capture(t, http.StatusNoContent)

	err := NewClient(srv.URL).NotifyImport(context.Background(), ImportReport{
		RunID:       "run-1",
		VersionID:   7,
		VersionName: "etag:abc",
		Rows:        map[string]int{"stops": 4, "agency": 1},
		Pruned:      2,
		Duration:    3 * time.Second,
	})
	if err != nil {
		t.Fatalf("NotifyImport() error = %v", err)
	}
	if len(*got) != 1 || len((*got)[0].Embeds) != 1 {
		t.Fatalf("messages = %+v", *got)
	}

	embed := (*got)[0].Embeds[0]
	if embed.Color != 0x2ECC71 || embed.Description != "etag:abc" {
		t.Errorf("embed = %+v", embed)
	}
	var names []string
	for _, f := range embed.Fields {
		names = append(names, f.Name)
	}
	want := []string{"Run", "Duration", "Version", "agency", "stops", "Pruned versions"}
	if len(names) != len(want) {
		t.Fatalf("fields = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("field %d = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestNotifyImportFailure(t *testing.T) {
	srv, got := capture(t, http.StatusOK)

	err := NewClient(srv.URL).NotifyImport(context.Background(), ImportReport{
		RunID: "run-2",
		Err:   errors.New("parsing zip: unexpected EOF"),
	})
	if err != nil {
		t.Fatal(err)
	}
	embed := (*got)[0].Embeds[0]
	if embed.Color != 0xFF0000 || embed.Description != "parsing zip: unexpected EOF" {
		t.Errorf("embed = %+v", embed)
	}
}

func TestSendMessageStatusError(t *testing.T) {
	srv, _ := capture(t, http.StatusBadRequest)

	if err := NewClient(srv.URL).SendMessage(context.Background(), WebhookMessage{Content: "x"}); err == nil {
		t.Error("SendMessage() succeeded on 400, want error")
	}
}

func TestDisabledClient(t *testing.T) {
	var nilClient *Client
	for _, c := range []*Client{NewClient(""), nilClient} {
		if c.Enabled() {
			t.Error("Enabled() = true without URL")
		}
		if err := c.SendMessage(context.Background(), WebhookMessage{Content: "x"}); err != nil {
			t.Errorf("SendMessage() error = %v", err)
		}
	}
}
