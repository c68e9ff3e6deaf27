package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"servicehub/internal/domain"
	"servicehub/internal/modules/booking"
	jwtsvc "servicehub/internal/pkg/jwt"
	"servicehub/internal/realtime"
)

const (
	pongWait   = 60 * time.Second
	maxMsgSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// BookingService is what the channel needs from the lifecycle engine:
// the legacy in-channel creation path and the transition operations.
type BookingService interface {
	Create(ctx context.Context, req booking.CreateBookingRequest) (*domain.Booking, error)
	Transition(ctx context.Context, bookingID, actorID int64, actorRole domain.UserRole, newStatus domain.BookingStatus) (*domain.Booking, error)
}

// LocationStore persists the latest reported provider position.
type LocationStore interface {
	UpdateLocation(ctx context.Context, userID int64, lat, lng float64) error
}

type Handler struct {
	hub       *realtime.Hub
	jwt       *jwtsvc.Service
	bookings  BookingService
	locations LocationStore

	// Per-provider ceiling on location fan-out.
	locRate  rate.Limit
	locBurst int

	mu       sync.Mutex
	limiters map[int64]*rate.Limiter
}

func NewHandler(hub *realtime.Hub, jwt *jwtsvc.Service, bookings BookingService, locations LocationStore, locRatePerSec float64, locBurst int) *Handler {
	return &Handler{
		hub:       hub,
		jwt:       jwt,
		bookings:  bookings,
		locations: locations,
		locRate:   rate.Limit(locRatePerSec),
		locBurst:  locBurst,
		limiters:  make(map[int64]*rate.Limiter),
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws", h.HandleWS)
}

// HandleWS authenticates via ?token= (websocket clients cannot set
// headers), upgrades, registers presence and runs the read loop until
// disconnect.
func (h *Handler) HandleWS(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Token is required. Use ?token=YOUR_JWT_TOKEN"})
		return
	}

	claims, err := h.jwt.ValidateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
		return
	}

	wsConn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws: upgrade failed user_id=%d error=%v", claims.UserID, err)
		return
	}

	conn := realtime.NewConn(claims.UserID, claims.Role, wsConn)
	h.hub.Register(conn)
	log.Printf("ws: connected user_id=%d conn_id=%s", conn.UserID, conn.ID)

	go conn.WritePump()

	defer func() {
		h.hub.Remove(conn)
		_ = wsConn.Close()
		log.Printf("ws: disconnected user_id=%d conn_id=%s", conn.UserID, conn.ID)
	}()

	wsConn.SetReadLimit(maxMsgSize)
	_ = wsConn.SetReadDeadline(time.Now().Add(pongWait))
	wsConn.SetPongHandler(func(string) error {
		return wsConn.SetReadDeadline(time.Now().Add(pongWait))
	})

	h.readLoop(conn, wsConn)
}

func (h *Handler) readLoop(conn *realtime.Conn, wsConn *websocket.Conn) {
	for {
		_, raw, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseAbnormalClosure) {
				log.Printf("ws: read error user_id=%d error=%v", conn.UserID, err)
			}
			return
		}

		var msg struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.sendError(conn, "INVALID_JSON", "Failed to parse message")
			continue
		}

		h.dispatch(conn, msg.Event, msg.Data)
	}
}

func (h *Handler) dispatch(conn *realtime.Conn, event string, data json.RawMessage) {
	switch event {
	case realtime.EventRegister:
		// Identity comes from the token at upgrade; a legacy register
		// is just a re-subscribe to the user topic.
		h.hub.Subscribe(conn, realtime.UserTopic(conn.UserID))

	case realtime.EventJoin:
		h.handleJoin(conn, data)

	case realtime.EventSubscribeBooking:
		h.handleSubscribeBooking(conn, data)

	case realtime.EventSubscribeProvider:
		h.handleSubscribeProvider(conn, data)

	case realtime.EventSubscribeBroker:
		h.hub.Subscribe(conn, realtime.UserTopic(conn.UserID))

	case realtime.EventNewBookingRequest:
		h.handleNewBookingRequest(conn, data)

	case realtime.EventBookingResponse:
		h.handleBookingResponse(conn, data)

	case realtime.EventBookingCompleted:
		h.handleBookingCompleted(conn, data)

	case realtime.EventUpdateLocation:
		h.handleUpdateLocation(conn, data)

	case realtime.EventPing:
		h.hub.Send(conn, realtime.EventPong, nil)

	default:
		h.sendError(conn, "UNKNOWN_EVENT", "Unknown event: "+event)
	}
}

func (h *Handler) handleJoin(conn *realtime.Conn, data json.RawMessage) {
	var msg struct {
		Room string `json:"room"`
	}
	if err := json.Unmarshal(data, &msg); err != nil || msg.Room == "" {
		return
	}
	h.hub.Subscribe(conn, msg.Room)
}

func (h *Handler) handleSubscribeBooking(conn *realtime.Conn, data json.RawMessage) {
	var msg struct {
		BookingID  int64 `json:"booking_id"`
		CustomerID int64 `json:"customer_id"`
		ProviderID int64 `json:"provider_id"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}

	if msg.BookingID > 0 {
		h.hub.Subscribe(conn, realtime.BookingTopic(msg.BookingID))
	}
	if msg.CustomerID > 0 {
		h.hub.Subscribe(conn, realtime.CustomerTopic(msg.CustomerID))
	}
	if msg.ProviderID > 0 {
		h.hub.Subscribe(conn, realtime.ProviderTopic(msg.ProviderID))
	}
}

func (h *Handler) handleSubscribeProvider(conn *realtime.Conn, data json.RawMessage) {
	var msg struct {
		CustomerID int64 `json:"customer_id"`
		ProviderID int64 `json:"provider_id"`
	}
	if err := json.Unmarshal(data, &msg); err != nil || msg.ProviderID <= 0 {
		return
	}

	h.hub.Subscribe(conn, realtime.ProviderTopic(msg.ProviderID))
	if msg.CustomerID > 0 {
		h.hub.Subscribe(conn, realtime.CustomerTopic(msg.CustomerID))
	}
}

// handleNewBookingRequest is the legacy in-channel creation path; the
// primary path is the REST endpoint. Both land in the same lifecycle
// engine.
func (h *Handler) handleNewBookingRequest(conn *realtime.Conn, data json.RawMessage) {
	var req booking.CreateBookingRequest
	if err := json.Unmarshal(data, &req); err != nil {
		h.sendError(conn, "INVALID_PAYLOAD", "Malformed booking request")
		return
	}
	req.CustomerID = conn.UserID

	if _, err := h.bookings.Create(context.Background(), req); err != nil {
		h.sendError(conn, bookingErrorCode(err), "Failed to create booking")
	}
}

func (h *Handler) handleBookingResponse(conn *realtime.Conn, data json.RawMessage) {
	var msg struct {
		BookingID int64  `json:"booking_id"`
		Status    string `json:"status"`
	}
	if err := json.Unmarshal(data, &msg); err != nil || msg.BookingID <= 0 {
		h.sendError(conn, "INVALID_PAYLOAD", "booking_id and status are required")
		return
	}

	status, ok := booking.ParseStatus(strings.ToUpper(msg.Status))
	if !ok {
		h.sendError(conn, "INVALID_PAYLOAD", "Unknown booking status: "+msg.Status)
		return
	}

	h.transition(conn, msg.BookingID, status)
}

func (h *Handler) handleBookingCompleted(conn *realtime.Conn, data json.RawMessage) {
	var msg struct {
		BookingID int64 `json:"booking_id"`
	}
	if err := json.Unmarshal(data, &msg); err != nil || msg.BookingID <= 0 {
		h.sendError(conn, "INVALID_PAYLOAD", "booking_id is required")
		return
	}

	h.transition(conn, msg.BookingID, domain.BookingCompleted)
}

func (h *Handler) transition(conn *realtime.Conn, bookingID int64, status domain.BookingStatus) {
	_, err := h.bookings.Transition(context.Background(), bookingID,
		conn.UserID, domain.UserRole(conn.Role), status)
	if err != nil {
		h.sendError(conn, bookingErrorCode(err), "Transition failed")
	}
}

// handleUpdateLocation only accepts positions from provider
// connections, always for their own id. A provider_id in the payload
// is ignored.
func (h *Handler) handleUpdateLocation(conn *realtime.Conn, data json.RawMessage) {
	if domain.UserRole(conn.Role) != domain.RoleProvider {
		h.sendError(conn, "FORBIDDEN", "Only providers can report location")
		return
	}

	var msg struct {
		Lat       float64 `json:"lat"`
		Lng       float64 `json:"lng"`
		Name      string  `json:"name"`
		BookingID *int64  `json:"booking_id"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}

	providerID := conn.UserID

	if !h.allowLocation(providerID) {
		return
	}

	if err := h.locations.UpdateLocation(context.Background(), providerID, msg.Lat, msg.Lng); err != nil {
		log.Printf("ws: persist location provider_id=%d error=%v", providerID, err)
	}

	payload := realtime.LocationPayload{
		ProviderID: providerID,
		Lat:        msg.Lat,
		Lng:        msg.Lng,
		Name:       msg.Name,
		BookingID:  msg.BookingID,
	}

	h.hub.Publish(realtime.ProviderTopic(providerID), realtime.EventProviderLocationUpdate, payload)
	if msg.BookingID != nil && *msg.BookingID > 0 {
		h.hub.Publish(realtime.BookingTopic(*msg.BookingID), realtime.EventProviderLocationUpdate, payload)
	}
}

func (h *Handler) allowLocation(providerID int64) bool {
	h.mu.Lock()
	lim, ok := h.limiters[providerID]
	if !ok {
		lim = rate.NewLimiter(h.locRate, h.locBurst)
		h.limiters[providerID] = lim
	}
	h.mu.Unlock()
	return lim.Allow()
}

func (h *Handler) sendError(conn *realtime.Conn, code, message string) {
	h.hub.Send(conn, realtime.EventError, realtime.ErrorPayload{Code: code, Message: message})
}

func bookingErrorCode(err error) string {
	switch {
	case errors.Is(err, booking.ErrValidation):
		return "VALIDATION_ERROR"
	case errors.Is(err, booking.ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, booking.ErrInvalidTransition):
		return "INVALID_TRANSITION"
	case errors.Is(err, booking.ErrConflict):
		return "CONFLICT"
	case errors.Is(err, booking.ErrForbidden):
		return "FORBIDDEN"
	}
	return "INTERNAL_ERROR"
}
