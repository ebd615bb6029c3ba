package websocket

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/taskmesh/taskmesh/internal/application/scheduler"
	"github.com/taskmesh/taskmesh/internal/domain"
	"github.com/taskmesh/taskmesh/internal/ports"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades HTTP connections and forwards bus events.
type Handler struct {
	bus    ports.EventBus
	logger *zap.Logger
}

// NewHandler creates a WebSocket handler.
func NewHandler(bus ports.EventBus, logger *zap.Logger) *Handler {
	return &Handler{
		bus:    bus,
		logger: logger,
	}
}

// HandleWorkflowStream streams events for a single workflow until the
// client disconnects.
func (h *Handler) HandleWorkflowStream(c *gin.Context) {
	workflowID := c.Param("id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	h.logger.Info("websocket connection established",
		zap.String("workflow_id", workflowID),
		zap.String("client", c.ClientIP()))

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	events := make(chan domain.Event, 32)
	if err := h.subscribe(ctx, events); err != nil {
		h.logger.Error("failed to subscribe to events", zap.Error(err))
		return
	}

	// Detect client disconnects; the read pump discards any payloads.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-events:
			if event.WorkflowID != workflowID {
				continue
			}

			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("failed to marshal event", zap.Error(err))
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug("client gone", zap.String("workflow_id", workflowID), zap.Error(err))
				return
			}
		}
	}
}

func (h *Handler) subscribe(ctx context.Context, ch chan<- domain.Event) error {
	handler := func(ctx context.Context, event domain.Event) error {
		select {
		case ch <- event:
		case <-ctx.Done():
			return ctx.Err()
		default:
			h.logger.Warn("event channel full, dropping event",
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)))
		}
		return nil
	}

	for _, topic := range []string{scheduler.TopicWorkflowEvents, scheduler.TopicTaskEvents} {
		if err := h.bus.Subscribe(ctx, topic, handler); err != nil {
			return err
		}
	}
	return nil
}
