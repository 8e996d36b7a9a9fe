package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ryanbastic/go-geodrop/internal/geo"
	"github.com/ryanbastic/go-geodrop/internal/lifecycle"
	"github.com/ryanbastic/go-geodrop/internal/metrics"
	"github.com/ryanbastic/go-geodrop/internal/proximity"
)

const (
	streamIdleTimeout = 60 * time.Second
	streamWriteWait   = 5 * time.Second
	streamMaxFrame    = 1 << 10
	mirrorMaxAge      = 5 * time.Second
)

// positionFix is a client frame. Both fields are required.
type positionFix struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

// streamFrame is a server frame: either a view of the surroundings after a
// position change, or an error about the last client frame.
type streamFrame struct {
	Type      string               `json:"type"`
	Position  *geo.Coordinate      `json:"position,omitempty"`
	Sightings []proximity.Sighting `json:"sightings,omitempty"`
	Nearest   *proximity.Sighting  `json:"nearest,omitempty"`
	Error     string               `json:"error,omitempty"`
}

// PositionHandler streams an actor's surroundings over a websocket. Every
// position change of the actor, whether sent on the socket or carried by an
// HTTP request, produces one frame.
type PositionHandler struct {
	sessions *lifecycle.Sessions
	radii    proximity.Radii
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewPositionHandler(sessions *lifecycle.Sessions, radii proximity.Radii, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		sessions: sessions,
		radii:    radii,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *PositionHandler) Stream(w http.ResponseWriter, r *http.Request) {
	actor := chi.URLParam(r, "actor")
	if strings.TrimSpace(actor) == "" {
		writeError(w, http.StatusBadRequest, "actor is required")
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "actor", actor, "error", err)
		return
	}
	defer conn.Close()
	defer metrics.StreamOpened()()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sess := h.sessions.For(actor)
	tracker := h.sessions.Tracker(actor)
	updates := tracker.Subscribe(ctx)
	problems := make(chan string, 4)

	// Reader loop.
	go func() {
		defer cancel()
		conn.SetReadLimit(streamMaxFrame)
		for {
			_ = conn.SetReadDeadline(time.Now().Add(streamIdleTimeout))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					h.logger.Debug("position stream closed", "actor", actor, "error", err)
				}
				return
			}
			var fix positionFix
			if err := json.Unmarshal(msg, &fix); err != nil || fix.Lat == nil || fix.Lng == nil {
				report(problems, "expected {\"lat\":..., \"lng\":...}")
				continue
			}
			if err := tracker.Update(geo.Coordinate{Lat: *fix.Lat, Lng: *fix.Lng}); err != nil {
				report(problems, err.Error())
			}
		}
	}()

	h.logger.Info("position stream opened", "actor", actor)
	for {
		var frame streamFrame
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			h.logger.Info("position stream ended", "actor", actor)
			return
		case c, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			frame = h.view(ctx, sess, c)
		case msg := <-problems:
			frame = streamFrame{Type: "error", Error: msg}
		}
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		if err := conn.WriteJSON(frame); err != nil {
			h.logger.Debug("position stream write failed", "actor", actor, "error", err)
			return
		}
	}
}

func (h *PositionHandler) view(ctx context.Context, sess *lifecycle.Session, at geo.Coordinate) streamFrame {
	if err := sess.SyncIfStale(ctx, mirrorMaxAge); err != nil {
		h.logger.Warn("mirror sync failed", "actor", sess.ActorID(), "error", err)
		return streamFrame{Type: "error", Position: &at, Error: "store unavailable"}
	}
	frame := streamFrame{Type: "view", Position: &at, Sightings: sess.Nearby(ctx)}
	if hit, ok := sess.Nearest(ctx); ok {
		s := proximity.Sight(hit, h.radii)
		frame.Nearest = &s
	}
	return frame
}

// report hands a problem to the writer without blocking the reader.
func report(problems chan<- string, msg string) {
	select {
	case problems <- msg:
	default:
	}
}
