package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat/internal/core"
)

// SessionView is the read-only part of a session the status server exposes.
type SessionView interface {
	Room() string
	State() core.State
	Attempts() int
	HistoryLoaded() bool
	Snapshot() []core.Message
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StateResponse is returned by GET /state.
type StateResponse struct {
	Room      string `json:"room"`
	State     string `json:"state"`
	Connected bool   `json:"connected"`
	Attempts  int    `json:"attempts"`
	History   bool   `json:"history_loaded"`
}

// MessagesResponse is returned by GET /messages.
type MessagesResponse struct {
	Room     string            `json:"room"`
	Total    int               `json:"total"`
	Messages []MessageResponse `json:"messages"`
}

// NewStatusServer builds the local status server for one session.
func NewStatusServer(view SessionView, addr string, logger *zerolog.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	h := &statusHandlers{view: view}
	router.GET("/health", healthHandler)
	router.GET("/state", h.State)
	router.GET("/messages", h.Messages)

	return &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func healthHandler(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

type statusHandlers struct {
	view SessionView
}

// State reports the connection status of the session.
// GET /state
func (h *statusHandlers) State(c *gin.Context) {
	state := h.view.State()
	c.JSON(http.StatusOK, StateResponse{
		Room:      h.view.Room(),
		State:     state.String(),
		Connected: state == core.StateConnected,
		Attempts:  h.view.Attempts(),
		History:   h.view.HistoryLoaded(),
	})
}

// Messages returns the message list in display order. ?limit=N keeps the last N.
// GET /messages
func (h *statusHandlers) Messages(c *gin.Context) {
	msgs := h.view.Snapshot()
	total := len(msgs)

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		if limit < len(msgs) {
			msgs = msgs[len(msgs)-limit:]
		}
	}

	c.JSON(http.StatusOK, MessagesResponse{
		Room:     h.view.Room(),
		Total:    total,
		Messages: messagesToResponse(msgs),
	})
}
