package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/quizmasterhq/quizmaster/internal/config"
	"github.com/quizmasterhq/quizmaster/internal/middleware"
	"github.com/quizmasterhq/quizmaster/internal/model"
	"github.com/quizmasterhq/quizmaster/internal/service"
	ws "github.com/quizmasterhq/quizmaster/internal/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowlist permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler handles the two WebSocket surfaces: the student autosave
// stream and the teacher live-results stream.
type WSHandler struct {
	rdb            *redis.Client
	testService    *service.TestService
	attemptService *service.AttemptService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(
	rdb *redis.Client,
	testService *service.TestService,
	attemptService *service.AttemptService,
	log zerolog.Logger,
	allowedOrigins []string,
) *WSHandler {
	return &WSHandler{
		rdb:            rdb,
		testService:    testService,
		attemptService: attemptService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/student/tests/:test_id/stream
// Real-time autosave channel for an in-progress attempt.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil || claims.Role != model.RoleStudent {
		c.JSON(http.StatusForbidden, gin.H{"error": "student access only"})
		return
	}

	testID, ok := parseTestID(c)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	studentID := claims.UserID

	// Autosave only makes sense on an attempt that is still running.
	attempt, err := h.attemptService.Latest(c.Request.Context(), testID, studentID)
	if err != nil || attempt.Status != model.AttemptStatusInProgress {
		ws.WriteError(conn, "no attempt in progress for this test")
		return
	}

	wsLog := h.log.With().
		Int("student_id", studentID).
		Str("test_id", testID.String()).
		Logger()
	wsLog.Info().Msg("Student connected")

	for {
		var envelope ws.RequestEnvelope
		raw, err := readRaw(conn)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}
		if err := json.Unmarshal(raw, &envelope); err != nil {
			ws.WriteError(conn, "malformed message")
			continue
		}

		switch envelope.Action {
		case ws.ActionAutosave:
			var req ws.AutosaveRequest
			if err := json.Unmarshal(raw, &req); err != nil {
				ws.WriteError(conn, "malformed autosave")
				continue
			}
			if err := h.attemptService.Autosave(c.Request.Context(), testID, studentID, req.Index, req.Answer); err != nil {
				wsLog.Error().Err(err).Int("index", req.Index).Msg("Autosave failed")
				ws.WriteError(conn, "autosave failed")
				continue
			}
			ws.WriteTyped(conn, ws.SavedResponse{Event: ws.EventSaved, Index: req.Index})
		case ws.ActionPing:
			ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
		default:
			ws.WriteError(conn, "unknown action")
		}
	}
}

// ResultsStream godoc
// WS /ws/v1/teacher/tests/:test_id/results
// Pushes a result event to the test owner whenever a submission finalizes.
func (h *WSHandler) ResultsStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil || claims.Role != model.RoleTeacher {
		c.JSON(http.StatusForbidden, gin.H{"error": "teacher access only"})
		return
	}

	testID, ok := parseTestID(c)
	if !ok {
		return
	}
	if _, err := h.testService.GetOwned(c.Request.Context(), testID, claims.UserID); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "test belongs to another teacher"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int("teacher_id", claims.UserID).
		Str("test_id", testID.String()).
		Logger()
	wsLog.Info().Msg("Teacher connected to results stream")

	sub := h.rdb.Subscribe(c.Request.Context(), config.CacheKey.TestResultsChannel(testID))
	defer sub.Close()

	// Drain client frames so pings and close frames are processed; the
	// read error doubles as the disconnect signal.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ch := sub.Channel()
	for {
		select {
		case <-done:
			wsLog.Debug().Msg("Teacher disconnected")
			return
		case <-c.Request.Context().Done():
			return
		case msg, open := <-ch:
			if !open {
				return
			}
			var event service.ResultEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				wsLog.Warn().Err(err).Msg("Malformed result event")
				continue
			}
			if err := ws.WriteTyped(conn, ws.ResultPush{Event: ws.EventResult, Payload: event}); err != nil {
				wsLog.Debug().Err(err).Msg("Write failed, closing")
				return
			}
		}
	}
}

func readRaw(conn *websocket.Conn) ([]byte, error) {
	ws.ExtendReadDeadline(conn)
	_, raw, err := conn.ReadMessage()
	return raw, err
}
