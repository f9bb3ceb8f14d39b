package ws

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func scanUntil(t *testing.T, scanner *bufio.Scanner, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for scanner.Scan() {
		if strings.Contains(scanner.Text(), want) {
			return
		}
		if time.Now().After(deadline) {
			break
		}
	}
	t.Fatalf("%q never arrived: %v", want, scanner.Err())
}

func TestHub_BroadcastReachesClient(t *testing.T) {
	hub := NewHub(testLogger())
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeSSE))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanUntil(t, scanner, `"connected"`)

	// The greeting arrived, so registration has happened.
	if n := hub.ClientCount(); n != 1 {
		t.Fatalf("ClientCount = %d, want 1", n)
	}

	hub.Broadcast(Event{Type: "loop_started", Payload: map[string]string{"team_id": "ops"}})
	scanUntil(t, scanner, "loop_started")
}

func TestHub_ClientRemovedOnDisconnect(t *testing.T) {
	hub := NewHub(testLogger())
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeSSE))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	scanner := bufio.NewScanner(resp.Body)
	scanUntil(t, scanner, `"connected"`)

	cancel()
	resp.Body.Close() //nolint:errcheck

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never deregistered")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_BroadcastWithoutClients(t *testing.T) {
	hub := NewHub(testLogger())
	// Must not panic or block.
	hub.Broadcast(Event{Type: "noop"})
}
