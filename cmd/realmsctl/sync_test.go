package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	cl "shadowrealms/internal/cli"
	"shadowrealms/internal/syncq"
)

func writeAPIError(w http.ResponseWriter, status int, code, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": strings.ToLower(code), "code": code, "reason": reason})
}

func runSync(t *testing.T, apiBase string) {
	t.Helper()
	cmd := newSyncCmd(&globals{apiBase: apiBase})
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
}

func queuedPurchase(key string) syncq.Command {
	return syncq.Command{
		Method:         http.MethodPost,
		Path:           "/v1/players/4b0e2f6a-2a55-4d7e-9a53-0f3c1b7d9e11/purchases",
		Body:           map[string]any{"item_code": "sword"},
		IdempotencyKey: key,
	}
}

func TestSyncKeepsEntriesWhileServerUnavailable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	require.NoError(t, syncq.Push(queuedPurchase("req-1")))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		writeAPIError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "")
	}))
	defer srv.Close()

	runSync(t, srv.URL)

	queue, err := syncq.Load()
	require.NoError(t, err)
	require.Len(t, queue, 1)
	require.Equal(t, "req-1", queue[0].IdempotencyKey)
}

func TestReplayQueueSortsOutcomes(t *testing.T) {
	var (
		mu   sync.Mutex
		keys []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("Idempotency-Key")
		mu.Lock()
		keys = append(keys, key)
		mu.Unlock()
		switch key {
		case "ok":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"sale"}`))
		case "dup":
			writeAPIError(w, http.StatusConflict, "CONFLICT", "DUPLICATE_REQUEST")
		case "poor":
			writeAPIError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "INSUFFICIENT_FUNDS")
		case "down":
			writeAPIError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "")
		default:
			writeAPIError(w, http.StatusBadGateway, "", "")
		}
	}))
	defer srv.Close()

	queue := []syncq.Command{
		queuedPurchase("ok"),
		queuedPurchase("dup"),
		queuedPurchase("poor"),
		queuedPurchase("down"),
		queuedPurchase("gateway"),
	}
	res := replayQueue(context.Background(), cl.NewClient(srv.URL, ""), queue)

	mu.Lock()
	require.Equal(t, []string{"ok", "dup", "poor", "down", "gateway"}, keys)
	mu.Unlock()
	require.Equal(t, 2, res.replayed)
	require.Equal(t, 1, res.rejected)
	require.Len(t, res.remaining, 2)
	require.Equal(t, "down", res.remaining[0].IdempotencyKey)
	require.Equal(t, "gateway", res.remaining[1].IdempotencyKey)
}

func TestQueueOnNetworkErrorParksRetryableWrites(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	rejected := &cl.APIError{Status: http.StatusBadRequest, Code: "INVALID_ARGUMENT"}
	require.ErrorIs(t, queueOnNetworkError(rejected, queuedPurchase("a")), rejected)

	unavailable := &cl.APIError{Status: http.StatusServiceUnavailable, Code: "UNAVAILABLE"}
	require.NoError(t, queueOnNetworkError(unavailable, queuedPurchase("b")))

	queue, err := syncq.Load()
	require.NoError(t, err)
	require.Len(t, queue, 1)
	require.Equal(t, "b", queue[0].IdempotencyKey)
}
