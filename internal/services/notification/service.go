// Package notification pushes alert changes to connected operator sessions.
//
// Delivery is at-least-once and unordered, and an event only says which alert
// changed. Consumers re-read the alert before acting. A subscriber that falls
// behind is dropped (its channel is closed) and is expected to reconnect and
// re-list.
package notification

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"disputedesk/internal/config"
	"disputedesk/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Event types
const (
	EventAlertCreated = "alert.created"
	EventAlertUpdated = "alert.updated"
	// EventResync tells subscribers that events may have been missed.
	EventResync = "resync"
)

const publishTimeout = 2 * time.Second

type Event struct {
	ID          string               `json:"id"`
	Type        string               `json:"type"`
	Category    models.AlertCategory `json:"category"`
	AlertID     uuid.UUID            `json:"alert_id"`
	Status      string               `json:"status"`
	PublishedAt time.Time            `json:"published_at"`
}

type Bus interface {
	Publish(ctx context.Context, event Event) error
	// Subscribe streams events of one category until ctx ends, cancel is
	// called or the subscriber is dropped for being slow.
	Subscribe(ctx context.Context, category models.AlertCategory) (events <-chan Event, cancel func(), err error)
	Close() error
}

// Options carries what the drivers need. Only the fields of the chosen driver are used.
type Options struct {
	Redis  *redis.Client
	DB     *sql.DB
	DSN    string
	Buffer int
	Log    *logrus.Logger
}

// Open builds the Bus for driver (see config.BusDriver*).
func Open(ctx context.Context, driver string, opts Options) (Bus, error) {
	if opts.Buffer <= 0 {
		opts.Buffer = 64
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	switch driver {
	case config.BusDriverMemory:
		return NewMemoryBus(opts.Buffer), nil
	case config.BusDriverRedis:
		if opts.Redis == nil {
			return nil, fmt.Errorf("notification: redis driver needs a client")
		}
		return NewRedisBus(ctx, opts.Redis, opts.Buffer, opts.Log)
	case config.BusDriverPostgres:
		if opts.DB == nil || opts.DSN == "" {
			return nil, fmt.Errorf("notification: postgres driver needs a connection and a DSN")
		}
		return NewPostgresBus(opts.DB, opts.DSN, opts.Buffer, opts.Log)
	default:
		return nil, fmt.Errorf("notification: unknown event bus driver %q", driver)
	}
}

// Service publishes after commit without ever failing the caller.
type Service struct {
	bus Bus
	log *logrus.Logger
}

// NewService creates a new notification service.
func NewService(bus Bus, log *logrus.Logger) *Service {
	return &Service{bus: bus, log: log}
}

// AlertChanged publishes a change of one alert. Errors are logged only.
func (s *Service) AlertChanged(ctx context.Context, eventType string, category models.AlertCategory, alertID uuid.UUID, status string) {
	if s == nil || s.bus == nil {
		return
	}
	event := Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		Category:    category,
		AlertID:     alertID,
		Status:      status,
		PublishedAt: time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.bus.Publish(ctx, event); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"category": category,
			"alert_id": alertID,
			"type":     eventType,
		}).Warn("failed to publish alert event")
	}
}

// Bus returns the underlying bus for subscribers.
func (s *Service) Bus() Bus {
	return s.bus
}
