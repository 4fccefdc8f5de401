package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// RefreshMessage is the payload published on the refresh topic.
//
//	{"job_type":"live_refresh","station_ids":[42],"invalidate":true}
type RefreshMessage struct {
	JobType string `json:"job_type"`

	// StationIDs limits the refresh; empty refreshes every station.
	StationIDs []int `json:"station_ids,omitempty"`

	// Invalidate drops cached entries first so the refresh reaches the sources.
	Invalidate bool `json:"invalidate,omitempty"`
}

// Acker is the subset of *pubsub.Message the handler settles.
type Acker interface {
	Ack()
	Nack()
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	RefreshJob       *RefreshJob
	Live             LiveReader
	Logger           zerolog.Logger
}

// PubSubHandler runs refresh jobs on demand from a Pub/Sub subscription.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	refreshJob       *RefreshJob
	live             LiveReader
	logger           zerolog.Logger
}

// NewPubSubHandler creates a handler bound to cfg.SubscriptionName.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)
	subscriber.ReceiveSettings.MaxOutstandingMessages = 4
	subscriber.ReceiveSettings.MaxExtension = 5 * time.Minute

	h := NewMessageHandler(cfg)
	h.client = client
	h.subscriber = subscriber
	return h, nil
}

// NewMessageHandler creates a handler with no subscription attached, for
// feeding messages through Handle directly.
func NewMessageHandler(cfg PubSubConfig) *PubSubHandler {
	return &PubSubHandler{
		subscriptionName: cfg.SubscriptionName,
		refreshJob:       cfg.RefreshJob,
		live:             cfg.Live,
		logger:           cfg.Logger,
	}
}

// Start receives messages until ctx is done.
func (h *PubSubHandler) Start(ctx context.Context) error {
	if h.subscriber == nil {
		return fmt.Errorf("pubsub handler has no subscription")
	}

	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		logger := h.logger.With().
			Str("message_id", msg.ID).
			Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
			Logger()
		h.Handle(logger.WithContext(ctx), msg.Data, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	if h.client == nil {
		return nil
	}
	return h.client.Close()
}

// Handle decodes one message, runs its job and settles it.
// Unknown job types are acked so they are not redelivered.
func (h *PubSubHandler) Handle(ctx context.Context, data []byte, msg Acker) {
	start := time.Now()
	logger := zerolog.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled {
		logger = &h.logger
	}

	var m RefreshMessage
	if err := json.Unmarshal(data, &m); err != nil {
		logger.Error().Err(err).Msg("failed to parse refresh message")
		msg.Nack()
		return
	}

	var err error
	switch m.JobType {
	case JobTypeLiveRefresh:
		err = h.handleLiveRefresh(ctx, m)
	case JobTypeHealthCheck:
		err = h.handleHealthCheck(ctx)
	default:
		logger.Warn().Str("job_type", m.JobType).Msg("unknown job type")
		msg.Ack()
		return
	}

	if err != nil {
		logger.Error().Err(err).Str("job_type", m.JobType).Msg("job failed")
		msg.Nack()
		return
	}

	logger.Info().
		Str("job_type", m.JobType).
		Dur("duration", time.Since(start)).
		Msg("job completed successfully")
	msg.Ack()
}

func (h *PubSubHandler) handleLiveRefresh(ctx context.Context, m RefreshMessage) error {
	if m.Invalidate && h.live != nil {
		n := h.live.Invalidate(m.StationIDs...)
		h.logger.Debug().Int("invalidated", n).Msg("cache invalidated before refresh")
	}

	var result *RefreshResult
	if len(m.StationIDs) > 0 {
		result = h.refreshJob.RunStations(ctx, m.StationIDs)
	} else {
		result = h.refreshJob.Run(ctx)
	}

	if result.Failed > result.Succeeded() {
		return fmt.Errorf("too many refresh failures: %d/%d", result.Failed, result.Total)
	}
	return nil
}

// handleHealthCheck resolves the first configured station end to end.
func (h *PubSubHandler) handleHealthCheck(ctx context.Context) error {
	var ids []int
	if h.refreshJob.stations != nil {
		ids = h.refreshJob.stations.StationIDs()
	}
	if len(ids) == 0 {
		h.logger.Debug().Msg("health check skipped, no stations configured")
		return nil
	}

	if h.live != nil {
		h.live.Invalidate(ids[0])
	}
	result := h.refreshJob.RunStations(ctx, ids[:1])
	if result.Failed > 0 {
		return fmt.Errorf("health check failed for station %d", ids[0])
	}
	return nil
}
