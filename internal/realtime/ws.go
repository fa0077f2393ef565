package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"marketplace/internal/domain"
	"marketplace/internal/pkg/jwt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = (pongWait * 9) / 10
	maxMsgSize    = 64 * 1024
	sendBuffer    = 256
	statusTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type TokenValidator interface {
	ValidateToken(token string) (*jwt.Claims, error)
}

// StatusUpdater applies authoritative booking status changes.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, bookingID int64, to domain.BookingStatus, actor domain.Actor) (*domain.Booking, error)
}

// client is a Conn backed by a websocket. All writes go through send so the
// write pump is the only writer.
type client struct {
	id     string
	userID int64
	role   domain.UserRole
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
}

func (c *client) ID() string { return c.id }

func (c *client) Send(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		// slow client
		return false
	}
}

func (c *client) Close() {
	c.once.Do(func() { close(c.done) })
}

type clientMessage struct {
	Type      string               `json:"type"`
	BookingID int64                `json:"booking_id,omitempty"`
	Status    domain.BookingStatus `json:"status,omitempty"`
	Lat       float64              `json:"lat,omitempty"`
	Lng       float64              `json:"lng,omitempty"`
}

type serverMessage struct {
	Type      string          `json:"type"`
	BookingID int64           `json:"booking_id,omitempty"`
	Booking   *domain.Booking `json:"booking,omitempty"`
	Code      string          `json:"code,omitempty"`
	Message   string          `json:"message,omitempty"`
}

type WSHandler struct {
	router  *Router
	tokens  TokenValidator
	updater StatusUpdater
	log     *zap.Logger
}

func NewWSHandler(router *Router, tokens TokenValidator, updater StatusUpdater, logger *zap.Logger) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{router: router, tokens: tokens, updater: updater, log: logger.Named("ws")}
}

// HandleWebSocket upgrades GET /ws?token=JWT. Browsers cannot set headers on
// websocket requests, so the token travels in the query. A client that
// reconnects may pass its previous conn_id to replace the stale handle.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error":   gin.H{"code": "UNAUTHORIZED", "message": "token query parameter is required"},
		})
		return
	}
	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error":   gin.H{"code": "INVALID_TOKEN", "message": "invalid or expired token"},
		})
		return
	}

	connID := c.Query("conn_id")
	if _, err := uuid.Parse(connID); err != nil {
		connID = uuid.NewString()
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	cl := &client{
		id:     connID,
		userID: claims.UserID,
		role:   domain.UserRole(claims.Role),
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
	if err := h.router.Connect(cl.userID, cl); err != nil {
		if !errors.Is(err, ErrConnTaken) {
			h.log.Error("register connection", zap.Error(err))
			_ = conn.Close()
			return
		}
		h.log.Warn("conn_id held by another user, issuing a new one",
			zap.Int64("user_id", cl.userID), zap.String("conn_id", cl.id))
		cl.id = uuid.NewString()
		if err := h.router.Connect(cl.userID, cl); err != nil {
			h.log.Error("register connection", zap.Error(err))
			_ = conn.Close()
			return
		}
	}
	h.log.Info("client connected", zap.Int64("user_id", cl.userID), zap.String("conn_id", cl.id))
	h.reply(cl, serverMessage{Type: "connected", Message: cl.id})

	go h.writePump(cl)
	h.readPump(c.Request.Context(), cl)
}

func (h *WSHandler) readPump(ctx context.Context, c *client) {
	defer func() {
		h.router.Disconnect(c)
		c.Close()
		_ = c.conn.Close()
		h.log.Info("client disconnected", zap.Int64("user_id", c.userID), zap.String("conn_id", c.id))
	}()

	c.conn.SetReadLimit(maxMsgSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("websocket read error", zap.Int64("user_id", c.userID), zap.Error(err))
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.replyError(c, "INVALID_JSON", "failed to parse message")
			continue
		}

		switch msg.Type {
		case "location":
			h.handleLocation(c, msg)
		case "status":
			h.handleStatus(ctx, c, msg)
		case "ping":
			h.reply(c, serverMessage{Type: "pong"})
		default:
			h.replyError(c, "UNKNOWN_TYPE", "unknown message type: "+msg.Type)
		}
	}
}

func (h *WSHandler) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (h *WSHandler) handleLocation(c *client, msg clientMessage) {
	if msg.BookingID <= 0 {
		h.replyError(c, "INVALID_BOOKING", "booking_id is required")
		return
	}
	delivered, err := h.router.ForwardLocation(c.userID, msg.BookingID, msg.Lat, msg.Lng)
	switch {
	case errors.Is(err, ErrInvalidLocation):
		h.replyError(c, "INVALID_LOCATION", err.Error())
	case errors.Is(err, ErrNoActiveJob):
		h.replyError(c, "NO_ACTIVE_JOB", err.Error())
	case err == nil && !delivered:
		h.log.Debug("location not delivered, customer offline", zap.Int64("booking_id", msg.BookingID))
	}
}

func (h *WSHandler) handleStatus(ctx context.Context, c *client, msg clientMessage) {
	if msg.BookingID <= 0 || msg.Status == "" {
		h.replyError(c, "INVALID_STATUS", "booking_id and status are required")
		return
	}
	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	b, err := h.updater.UpdateStatus(ctx, msg.BookingID, msg.Status, domain.Actor{ID: c.userID, Role: c.role})
	if err != nil {
		h.replyError(c, "STATUS_REJECTED", err.Error())
		return
	}
	h.reply(c, serverMessage{Type: "status_ack", BookingID: b.ID, Booking: b})
}

func (h *WSHandler) reply(c *client, m serverMessage) {
	data, err := json.Marshal(m)
	if err != nil {
		return
	}
	if !c.Send(data) {
		h.log.Debug("reply dropped", zap.Int64("user_id", c.userID), zap.String("type", m.Type))
	}
}

func (h *WSHandler) replyError(c *client, code, message string) {
	h.reply(c, serverMessage{Type: "error", Code: code, Message: message})
}
