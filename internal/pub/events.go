package pub

import (
	"clusterdir/internal/ports"
	"clusterdir/internal/types"
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Notifier publishes directory change events. A nil *Notifier, or one without a publisher, is a
// valid no-op notifier.
type Notifier struct {
	pub   ports.Publisher
	topic string
	now   func() time.Time
}

func NewNotifier(p ports.Publisher, topic string) *Notifier {
	return &Notifier{pub: p, topic: topic, now: time.Now}
}

// Notify publishes one event. Failures are logged and never returned: the mutation that
// triggered the event has already been applied.
func (n *Notifier) Notify(ctx context.Context, typ types.EventType, slug, channel, environment string) {
	if n == nil || n.pub == nil {
		return
	}
	ev := types.Event{
		ID:          uuid.NewString(),
		Type:        typ,
		Slug:        slug,
		Channel:     channel,
		Environment: environment,
		At:          n.now().UTC(),
	}
	b, err := json.Marshal(ev)
	if err != nil {
		log.WithError(err).WithField("type", typ).Error("failed to marshal event")
		return
	}
	if err := n.pub.PublishRaw(ctx, n.topic, b); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"type":  typ,
			"slug":  slug,
			"topic": n.topic,
		}).Warn("failed to publish event")
	}
}
