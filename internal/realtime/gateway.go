package realtime

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/roadwatch/roadwatch/internal/auth"
	"github.com/roadwatch/roadwatch/internal/monitoring"
	"github.com/roadwatch/roadwatch/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10 // 64 KiB

	defaultBufferSize = 64
)

// Message is the JSON frame delivered to clients.
type Message struct {
	Event string `json:"event"`
	Room  string `json:"room,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// ConnectionConfirmed is the payload of the connection:confirmed event.
type ConnectionConfirmed struct {
	ConnectionID string   `json:"connectionId"`
	Rooms        []string `json:"rooms"`
	UserID       string   `json:"userId,omitempty"`
	Role         string   `json:"role,omitempty"`
}

// TokenVerifier validates bearer credentials presented on connect.
type TokenVerifier interface {
	ValidateAccessToken(token string) (*auth.Claims, error)
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithTokenVerifier enables optional authentication of incoming connections.
func WithTokenVerifier(verifier TokenVerifier) Option {
	return func(g *Gateway) {
		g.verifier = verifier
	}
}

// WithBufferSize overrides the per-connection outbound queue length.
func WithBufferSize(size int) Option {
	return func(g *Gateway) {
		if size > 0 {
			g.bufferSize = size
		}
	}
}

// WithAllowedOrigins permits cross-origin upgrades from the listed hosts in addition to
// same-origin and loopback requests. "*" allows every origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(g *Gateway) {
		for _, origin := range origins {
			if host := hostWithoutPort(origin); host != "" {
				g.allowedOrigins[strings.ToLower(host)] = struct{}{}
			}
			if strings.TrimSpace(origin) == "*" {
				g.allowedOrigins["*"] = struct{}{}
			}
		}
	}
}

// Gateway accepts websocket connections, assigns them to rooms and delivers room-scoped
// events. Room membership lives only in memory.
type Gateway struct {
	mu             sync.RWMutex
	rooms          map[string]map[*connection]struct{}
	connections    map[*connection]struct{}
	upgrader       websocket.Upgrader
	verifier       TokenVerifier
	bufferSize     int
	allowedOrigins map[string]struct{}
	log            *zap.Logger
}

// NewGateway constructs a realtime gateway.
func NewGateway(opts ...Option) *Gateway {
	g := &Gateway{
		rooms:          make(map[string]map[*connection]struct{}),
		connections:    make(map[*connection]struct{}),
		bufferSize:     defaultBufferSize,
		allowedOrigins: make(map[string]struct{}),
		log:            logger.WithModule("realtime"),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     g.checkOrigin,
	}
	return g
}

// Serve upgrades the request and runs the connection until it closes. Authentication is
// optional: a missing or invalid token leaves the connection anonymous.
func (g *Gateway) Serve(w http.ResponseWriter, r *http.Request) {
	identity := g.authenticate(r)

	socket, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("upgrade failed", zap.Error(err))
		return
	}

	client := newConnection(g, socket, identity, g.bufferSize)
	rooms := RoomsFor(identity)
	g.register(client, rooms)

	client.enqueue(Message{
		Event: EventConnectionConfirmed,
		Data: ConnectionConfirmed{
			ConnectionID: client.id,
			Rooms:        rooms,
			UserID:       identity.UserID,
			Role:         identity.Role,
		},
	})

	g.log.Debug("connection established",
		zap.String("connection_id", client.id),
		zap.String("user_id", identity.UserID),
		zap.Strings("rooms", rooms),
	)

	go client.writeLoop()
	client.readLoop()
}

// Send delivers event to every connection in room. An empty room is a silent no-op.
func (g *Gateway) Send(room, event string, payload any) {
	room = normalizeRoom(room)
	if room == "" {
		monitoring.RecordRealtimeSend(event, monitoring.SendEmpty)
		return
	}

	g.mu.RLock()
	members := make([]*connection, 0, len(g.rooms[room]))
	for client := range g.rooms[room] {
		members = append(members, client)
	}
	g.mu.RUnlock()

	if len(members) == 0 {
		monitoring.RecordRealtimeSend(event, monitoring.SendEmpty)
		return
	}

	message := Message{Event: event, Room: room, Data: payload}
	delivered := 0
	for _, client := range members {
		if client.enqueue(message) {
			delivered++
			continue
		}
		g.log.Warn("dropping backpressured connection",
			zap.String("connection_id", client.id),
			zap.String("user_id", client.identity.UserID),
			zap.String("room", room),
		)
		monitoring.RecordRealtimeDrop(room, closeBackpressure.text)
		client.close(closeBackpressure)
	}

	if delivered == 0 {
		monitoring.RecordRealtimeSend(event, monitoring.SendDropped)
		return
	}
	monitoring.RecordRealtimeSend(event, monitoring.SendDelivered)
}

// ConnectionCount reports the number of open connections.
func (g *Gateway) ConnectionCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.connections)
}

// RoomSize reports the number of connections currently in room.
func (g *Gateway) RoomSize(room string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms[normalizeRoom(room)])
}

// Close disconnects every client.
func (g *Gateway) Close() {
	g.mu.RLock()
	clients := make([]*connection, 0, len(g.connections))
	for client := range g.connections {
		clients = append(clients, client)
	}
	g.mu.RUnlock()

	for _, client := range clients {
		client.close(closeShutdown)
	}
}

func (g *Gateway) authenticate(r *http.Request) Identity {
	if g.verifier == nil {
		return Identity{}
	}

	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		token = auth.BearerToken(r.Header.Get("Authorization"))
	}
	if token == "" {
		return Identity{}
	}

	claims, err := g.verifier.ValidateAccessToken(token)
	if err != nil {
		g.log.Debug("socket authentication failed; continuing anonymously", zap.Error(err))
		return Identity{}
	}
	return Identity{UserID: claims.UserID, Role: strings.ToLower(claims.Role)}
}

func (g *Gateway) register(client *connection, rooms []string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.connections[client] = struct{}{}
	for _, room := range rooms {
		if g.rooms[room] == nil {
			g.rooms[room] = make(map[*connection]struct{})
		}
		g.rooms[room][client] = struct{}{}
		client.rooms = append(client.rooms, room)
	}
	monitoring.RecordRealtimeConnection(!client.identity.Anonymous(), 1)
}

func (g *Gateway) unregister(client *connection) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.connections[client]; !ok {
		return
	}
	delete(g.connections, client)
	for _, room := range client.rooms {
		members := g.rooms[room]
		delete(members, client)
		if len(members) == 0 {
			delete(g.rooms, room)
		}
	}
	monitoring.RecordRealtimeConnection(!client.identity.Anonymous(), -1)
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if _, ok := g.allowedOrigins["*"]; ok {
		return true
	}
	originHost := strings.ToLower(hostWithoutPort(origin))
	if _, ok := g.allowedOrigins[originHost]; ok {
		return true
	}
	return originHost == strings.ToLower(hostWithoutPort(r.Host)) || isLoopback(originHost)
}

func newConnectionID() string {
	return uuid.NewString()
}

func hostWithoutPort(host string) string {
	host = strings.TrimSpace(host)
	if host == "" || host == "*" {
		return ""
	}

	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		parsed, err := http.NewRequest(http.MethodGet, host, nil)
		if err == nil {
			return hostWithoutPort(parsed.URL.Host)
		}
	}

	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func isLoopback(host string) bool {
	ip := net.ParseIP(host)
	if ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(host, "localhost")
}
