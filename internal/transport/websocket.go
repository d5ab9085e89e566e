// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	applog "tuner/internal/log"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("transport: closed")

const (
	defaultBroadcastSlots = 64
	writeTimeout          = time.Second
)

// WebSocketTransport broadcasts JSON messages to every connected client.
// It is an http.Handler; mount it on the server's /ws route.
type WebSocketTransport struct {
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]struct{}
	clientsMu sync.Mutex
	broadcast chan any

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	dropped atomic.Uint64
}

// NewWebSocketTransport starts the broadcast goroutine. slots bounds the
// number of messages waiting to go out; when it is full Send drops.
func NewWebSocketTransport(slots int) *WebSocketTransport {
	if slots <= 0 {
		slots = defaultBroadcastSlots
	}
	wst := &WebSocketTransport{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // local tool, any page may connect
			},
		},
		clients:   make(map[*websocket.Conn]struct{}),
		broadcast: make(chan any, slots),
		done:      make(chan struct{}),
	}

	wst.wg.Add(1)
	go wst.handleBroadcasts()
	return wst
}

// ServeHTTP upgrades the connection and registers the client.
func (wst *WebSocketTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case <-wst.done:
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := wst.upgrader.Upgrade(w, r, nil)
	if err != nil {
		applog.Warnf("WebSocketTransport: Upgrade error: %v", err)
		return
	}

	wst.clientsMu.Lock()
	select {
	case <-wst.done:
		wst.clientsMu.Unlock()
		conn.Close()
		return
	default:
	}
	wst.clients[conn] = struct{}{}
	total := len(wst.clients)
	wst.wg.Add(1)
	wst.clientsMu.Unlock()
	applog.Infof("WebSocketTransport: Client connected from %s, total: %d", r.RemoteAddr, total)

	// Clients only listen; reading keeps control frames flowing and
	// notices the disconnect.
	go func() {
		defer wst.wg.Done()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		if wst.remove(conn) {
			applog.Infof("WebSocketTransport: Client disconnected, total: %d", wst.Clients())
		}
	}()
}

// remove unregisters and closes conn. It reports whether conn was still
// registered.
func (wst *WebSocketTransport) remove(conn *websocket.Conn) bool {
	wst.clientsMu.Lock()
	_, ok := wst.clients[conn]
	delete(wst.clients, conn)
	wst.clientsMu.Unlock()
	conn.Close()
	return ok
}

func (wst *WebSocketTransport) handleBroadcasts() {
	defer wst.wg.Done()
	for {
		select {
		case <-wst.done:
			return
		case data := <-wst.broadcast:
			payload, err := json.Marshal(data)
			if err != nil {
				applog.Errorf("WebSocketTransport: Encode error: %v", err)
				continue
			}
			wst.write(payload)
		}
	}
}

func (wst *WebSocketTransport) write(payload []byte) {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	for client := range wst.clients {
		client.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := client.WriteMessage(websocket.TextMessage, payload); err != nil {
			applog.Warnf("WebSocketTransport: Error sending to client: %v", err)
			client.Close()
			delete(wst.clients, client)
		}
	}
}

// Send queues data for broadcast. A full queue drops the message.
func (wst *WebSocketTransport) Send(data any) error {
	select {
	case <-wst.done:
		return ErrClosed
	default:
	}
	select {
	case wst.broadcast <- data:
	default:
		wst.dropped.Add(1)
	}
	return nil
}

// Clients is the number of connected clients.
func (wst *WebSocketTransport) Clients() int {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	return len(wst.clients)
}

// Dropped is the number of messages lost to a full broadcast queue.
func (wst *WebSocketTransport) Dropped() uint64 { return wst.dropped.Load() }

// Close disconnects every client and stops the broadcast goroutine.
func (wst *WebSocketTransport) Close() error {
	wst.closeOnce.Do(func() {
		applog.Infof("WebSocketTransport: Closing")
		close(wst.done)

		wst.clientsMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down")
		deadline := time.Now().Add(writeTimeout)
		for client := range wst.clients {
			client.WriteControl(websocket.CloseMessage, msg, deadline)
			client.Close()
		}
		clear(wst.clients)
		wst.clientsMu.Unlock()

		wst.wg.Wait()
	})
	return nil
}

var _ Transport = (*WebSocketTransport)(nil)
var _ http.Handler = (*WebSocketTransport)(nil)
