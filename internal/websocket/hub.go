package websocket

import (
	"context"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// tokenVerifier checks a raw bearer token and returns its subject.
type tokenVerifier interface {
	VerifyToken(token string) (string, error)
}

// Hub fans chat-list events out to every browser tab a user has open.
// Each connected user gets one Redis subscription on their
// user_updates channel; sockets for the same user share it.
type Hub struct {
	mu      sync.RWMutex
	sockets map[string][]*websocket.Conn
	cancels map[string]context.CancelFunc

	redis        *redis.Client
	auth         tokenVerifier
	authRequired bool
}

func NewHub(redisClient *redis.Client, auth tokenVerifier, authRequired bool) *Hub {
	return &Hub{
		sockets:      make(map[string][]*websocket.Conn),
		cancels:      make(map[string]context.CancelFunc),
		redis:        redisClient,
		auth:         auth,
		authRequired: authRequired,
	}
}

// HandleWebSocket upgrades the connection for the user named in the
// userId query param. When auth is enforced the token query param must
// verify and its subject must match userId.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "Missing userId", http.StatusBadRequest)
		return
	}

	tokenStr := r.URL.Query().Get("token")
	if h.authRequired || tokenStr != "" {
		sub, err := h.auth.VerifyToken(tokenStr)
		if err != nil || sub != userID {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	h.attach(userID, conn)

	go func() {
		defer h.detach(userID, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (h *Hub) attach(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sockets[userID] = append(h.sockets[userID], conn)

	// First socket for this user starts the shared subscription.
	if len(h.sockets[userID]) == 1 {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancels[userID] = cancel
		go h.relay(ctx, userID)
	}

	log.Printf("websocket connected: user %s (%d open)", userID, len(h.sockets[userID]))
}

func (h *Hub) detach(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn.Close()

	conns := h.sockets[userID]
	for i, c := range conns {
		if c == conn {
			h.sockets[userID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}

	if len(h.sockets[userID]) == 0 {
		delete(h.sockets, userID)
		if cancel, ok := h.cancels[userID]; ok {
			cancel()
			delete(h.cancels, userID)
		}
	}

	log.Printf("websocket disconnected: user %s", userID)
}

// relay pipes the user's Redis channel into their open sockets until
// the last one closes.
func (h *Hub) relay(ctx context.Context, userID string) {
	pubsub := h.redis.Subscribe(ctx, "user_updates:"+userID)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(userID, []byte(msg.Payload))
		}
	}
}

func (h *Hub) broadcast(userID string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, conn := range h.sockets[userID] {
		conn.WriteMessage(websocket.TextMessage, data)
	}
}
