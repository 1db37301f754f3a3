package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"disputedesk/internal/models"
	"disputedesk/internal/services/notification"
	"disputedesk/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

const heartbeatInterval = 15 * time.Second

// StreamHandler serves alert change events as Server-Sent Events. Events only
// carry the alert id and status; clients re-query the alert.
type StreamHandler struct {
	bus notification.Bus
	log *logrus.Logger
}

func NewStreamHandler(bus notification.Bus, log *logrus.Logger) *StreamHandler {
	return &StreamHandler{bus: bus, log: log}
}

func (h *StreamHandler) Stream(c *fiber.Ctx) error {
	category := models.AlertCategory(c.Query("category", string(models.AlertCategoryPreDispute)))
	if category != models.AlertCategoryFraud && category != models.AlertCategoryPreDispute {
		return utils.BadRequest(c, "category must be fraud or pre_dispute")
	}

	// The stream outlives the handler, so it gets its own context.
	ctx, cancel := context.WithCancel(context.Background())
	events, unsubscribe, err := h.bus.Subscribe(ctx, category)
	if err != nil {
		cancel()
		return utils.HandleError(c, err)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	actor := utils.ActorID(c)
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()
		defer unsubscribe()
		logger := h.log.WithFields(logrus.Fields{"category": category, "actor": actor})
		logger.Debug("alert stream opened")

		// Tell the client to list once, then rely on change events.
		if err := writeEvent(w, notification.Event{Type: notification.EventResync, Category: category}); err != nil {
			return
		}

		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()
		for {
			select {
			case event, ok := <-events:
				if !ok {
					// Dropped for falling behind; the client reconnects and re-lists.
					logger.Info("alert stream subscriber dropped")
					return
				}
				if err := writeEvent(w, event); err != nil {
					return
				}
			case <-heartbeat.C:
				if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					logger.Debug("alert stream closed by client")
					return
				}
			}
		}
	}))
	return nil
}

func writeEvent(w *bufio.Writer, event notification.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if event.ID != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", event.ID); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, payload); err != nil {
		return err
	}
	return w.Flush()
}
