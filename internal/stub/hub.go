package stub

import (
	"context"
	"net/http"
	"sync"
	"time"

	"pairprep/internal/collab"
	"pairprep/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const clientQueueSize = 64

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// roomSet owns one room per live session.
type roomSet struct {
	mu    sync.Mutex
	rooms map[string]*room
}

func newRoomSet() *roomSet {
	return &roomSet{rooms: make(map[string]*room)}
}

func (rs *roomSet) get(sessionID string) *room {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	r, ok := rs.rooms[sessionID]
	if !ok {
		r = newRoom(sessionID)
		rs.rooms[sessionID] = r
	}
	return r
}

func (rs *roomSet) drop(sessionID string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	delete(rs.rooms, sessionID)
}

// serveStream upgrades one collaboration stream connection and runs its
// read loop.
func (rs *roomSet) serveStream(c *gin.Context) {
	sessionID := c.Param("session_id")
	userID := c.Query("user_id")
	username := c.Query("username")
	if sessionID == "" || userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id and user_id are required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn(c.Request.Context(), "stream upgrade failed", zap.Error(err))
		return
	}

	r := rs.get(sessionID)
	client := &roomClient{
		conn:     conn,
		send:     make(chan []byte, clientQueueSize),
		userID:   userID,
		username: username,
	}
	r.join(client)

	go client.writePump()
	client.readPump(r)

	if r.leave(client) {
		rs.drop(sessionID)
	}
}

// roomClient is one connected participant. All socket writes go through the
// send channel so the write pump is the only writer.
type roomClient struct {
	conn     *websocket.Conn
	send     chan []byte
	userID   string
	username string
	closed   bool // guarded by the room mutex, like enqueue
}

func (c *roomClient) close() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *roomClient) writePump() {
	for data := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			break
		}
	}
	_ = c.conn.Close()
}

func (c *roomClient) readPump(r *room) {
	defer func() { _ = c.conn.Close() }()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := collab.Decode(data)
		if err != nil {
			logger.Warn(context.Background(), "malformed client envelope", zap.Error(err))
			continue
		}
		if r.handle(c, env) {
			return
		}
	}
}

// room is the shared state of one collaborative session.
type room struct {
	sessionID string

	mu       sync.Mutex
	clients  []*roomClient
	code     string
	language string
	chat     []collab.ChatEntry
	locks    map[int]string
}

func newRoom(sessionID string) *room {
	return &room{sessionID: sessionID, locks: make(map[int]string)}
}

// join registers the client, replays current session state to it and
// announces the join to everyone else.
func (r *room) join(client *roomClient) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clients = append(r.clients, client)

	code := r.code
	state := &collab.SessionState{
		Code:     &code,
		Language: r.language,
		Users:    r.usersLocked(),
		Chat:     append([]collab.ChatEntry(nil), r.chat...),
	}
	client.enqueue(mustEncode(state))

	r.broadcastLocked(client, mustEncode(&collab.UserJoined{
		UserID:   client.userID,
		Username: client.username,
	}))
}

// leave unregisters the client and reports whether the room is now empty.
func (r *room) leave(client *roomClient) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	found := false
	next := r.clients[:0]
	for _, c := range r.clients {
		if c == client {
			found = true
			continue
		}
		next = append(next, c)
	}
	r.clients = next
	client.close()
	if !found {
		return len(r.clients) == 0
	}

	for line, holder := range r.locks {
		if holder == client.userID {
			delete(r.locks, line)
			r.broadcastLocked(nil, mustEncode(&collab.LineLockReleased{Line: line}))
		}
	}
	r.broadcastLocked(nil, mustEncode(&collab.PartnerLeft{UserID: client.userID}))
	return len(r.clients) == 0
}

// handle processes one inbound envelope. It returns true when the session
// has ended and the connection should stop reading.
func (r *room) handle(client *roomClient, env collab.Envelope) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch e := env.(type) {
	case *collab.Introduce:
		if e.Username != "" {
			client.username = e.Username
		}
		r.broadcastLocked(client, mustEncode(&collab.PresenceSnapshot{Users: r.usersLocked()}))
	case *collab.ChatMessage:
		if e.Timestamp.IsZero() {
			e.Timestamp = time.Now().UTC()
		}
		r.chat = append(r.chat, collab.ChatEntry{
			UserID:    e.UserID,
			Username:  e.Username,
			Text:      e.Text,
			Timestamp: e.Timestamp,
		})
		r.broadcastLocked(client, mustEncode(e))
	case *collab.CodeUpdate:
		r.code = e.Code
		r.broadcastLocked(client, mustEncode(e))
	case *collab.RequestLineLock:
		if holder, held := r.locks[e.Line]; held && holder != client.userID {
			client.enqueue(mustEncode(&collab.LineLockDenied{Line: e.Line, UserID: holder}))
			break
		}
		r.locks[e.Line] = client.userID
		r.broadcastLocked(nil, mustEncode(&collab.LineLockGranted{Line: e.Line, UserID: client.userID}))
	case *collab.ReleaseLineLock:
		if r.locks[e.Line] == client.userID {
			delete(r.locks, e.Line)
			r.broadcastLocked(nil, mustEncode(&collab.LineLockReleased{Line: e.Line}))
		}
	case *collab.EndSession:
		r.broadcastLocked(client, mustEncode(&collab.EndSession{}))
		for _, c := range r.clients {
			c.close()
		}
		return true
	}
	return false
}

func (r *room) usersLocked() []collab.User {
	users := make([]collab.User, 0, len(r.clients))
	for _, c := range r.clients {
		users = append(users, collab.User{UserID: c.userID, Username: c.username})
	}
	return users
}

// broadcastLocked fans a frame out to every client except the sender.
func (r *room) broadcastLocked(sender *roomClient, data []byte) {
	if data == nil {
		return
	}
	for _, c := range r.clients {
		if c == sender {
			continue
		}
		c.enqueue(data)
	}
}

// enqueue drops the frame when the client is closed or its queue is full; a
// slow stub consumer must not block the room.
func (c *roomClient) enqueue(data []byte) {
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func mustEncode(env collab.Envelope) []byte {
	data, err := collab.Encode(env)
	if err != nil {
		logger.Error(context.Background(), "encode stub envelope failed", zap.Error(err))
		return nil
	}
	return data
}
