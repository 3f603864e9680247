package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"shadowrealms/internal/ledger"
)

const (
	feedBuffer       = 256
	feedWriteTimeout = 5 * time.Second
	feedPongWait     = 60 * time.Second
	feedPingEvery    = 25 * time.Second
)

// Feed fans committed ledger events out to websocket subscribers. Slow
// subscribers lose events rather than stall the ledger.
type Feed struct {
	log      *slog.Logger
	upgrader websocket.Upgrader

	nextID  atomic.Uint64
	mu      sync.RWMutex
	subs    map[uint64]*subscriber
	dropped atomic.Uint64
}

type subscriber struct {
	playerID string
	out      chan []byte
}

func NewFeed(logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		subs: map[uint64]*subscriber{},
	}
}

// Publish implements ledger.EventSink.
func (f *Feed) Publish(_ context.Context, ev ledger.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, sub := range f.subs {
		if sub.playerID != "" && sub.playerID != ev.PlayerID {
			continue
		}
		select {
		case sub.out <- b:
		default:
			f.dropped.Add(1)
		}
	}
	return nil
}

// Subscribers reports the number of connected clients.
func (f *Feed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

func (f *Feed) add(sub *subscriber) uint64 {
	id := f.nextID.Add(1)
	f.mu.Lock()
	f.subs[id] = sub
	f.mu.Unlock()
	return id
}

func (f *Feed) remove(id uint64) {
	f.mu.Lock()
	delete(f.subs, id)
	f.mu.Unlock()
}

// ServeHTTP upgrades the request and streams events until the client goes
// away. ?player_id= narrows the stream to one identity.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var playerID string
	if raw := strings.TrimSpace(r.URL.Query().Get("player_id")); raw != "" {
		id, err := ledger.ValidatePlayerID(raw)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		playerID = id
	}

	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := &subscriber{playerID: playerID, out: make(chan []byte, feedBuffer)}
	id := f.add(sub)
	defer f.remove(id)
	f.log.Info("feed subscriber joined", "subscriber", id, "player_id", playerID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	writeErr := make(chan error, 1)
	go func() {
		ping := time.NewTicker(feedPingEvery)
		defer ping.Stop()
		for {
			select {
			case <-ctx.Done():
				writeErr <- ctx.Err()
				return
			case b := <-sub.out:
				_ = conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					writeErr <- err
					return
				}
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(feedWriteTimeout)); err != nil {
					writeErr <- err
					return
				}
			}
		}
	}()

	// Clients never send data; reading only services control frames.
	_ = conn.SetReadDeadline(time.Now().Add(feedPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(feedPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	cancel()
	select {
	case <-writeErr:
	case <-time.After(500 * time.Millisecond):
	}
	f.log.Info("feed subscriber left", "subscriber", id, "dropped_total", f.dropped.Load())
}
