package notification

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"disputedesk/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

const listenerPing = 90 * time.Second

func pgChannel(category models.AlertCategory) string {
	return "alerts_" + string(category)
}

// PostgresBus uses LISTEN/NOTIFY, so no broker beyond the database is needed.
type PostgresBus struct {
	db       *sql.DB
	listener *pq.Listener
	local    *MemoryBus
	log      *logrus.Logger
	stop     chan struct{}
	done     chan struct{}
}

func NewPostgresBus(db *sql.DB, dsn string, buffer int, log *logrus.Logger) (*PostgresBus, error) {
	listener := pq.NewListener(dsn, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.WithError(err).WithField("event", ev).Warn("postgres listener problem")
		}
	})
	for _, c := range categories {
		if err := listener.Listen(pgChannel(c)); err != nil {
			listener.Close()
			return nil, fmt.Errorf("listen on %s: %w", pgChannel(c), err)
		}
	}

	b := &PostgresBus{
		db:       db,
		listener: listener,
		local:    NewMemoryBus(buffer),
		log:      log,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go b.pump()
	return b, nil
}

func (b *PostgresBus) pump() {
	defer close(b.done)
	for {
		select {
		case <-b.stop:
			return
		case n := <-b.listener.Notify:
			if n == nil {
				// Reconnected: anything sent meanwhile is lost.
				b.resync()
				continue
			}
			var event Event
			if err := json.Unmarshal([]byte(n.Extra), &event); err != nil {
				b.log.WithError(err).WithField("channel", n.Channel).Warn("dropping malformed alert event")
				continue
			}
			b.local.Publish(context.Background(), event)
		case <-time.After(listenerPing):
			go b.listener.Ping()
		}
	}
}

func (b *PostgresBus) resync() {
	for _, c := range categories {
		b.local.Publish(context.Background(), Event{
			ID:          uuid.NewString(),
			Type:        EventResync,
			Category:    c,
			PublishedAt: time.Now().UTC(),
		})
	}
}

func (b *PostgresBus) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = b.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", pgChannel(event.Category), string(payload))
	return err
}

func (b *PostgresBus) Subscribe(ctx context.Context, category models.AlertCategory) (<-chan Event, func(), error) {
	return b.local.Subscribe(ctx, category)
}

func (b *PostgresBus) Close() error {
	close(b.stop)
	<-b.done
	b.local.Close()
	return b.listener.Close()
}
