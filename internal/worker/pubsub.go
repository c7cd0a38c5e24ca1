package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// Job types carried in RefreshMessage.JobType.
const (
	JobProviderRefresh = "provider_refresh"
	JobHealthCheck     = "health_check"
)

// Dispatch errors.
var (
	ErrUnknownJob = errors.New("unknown job type")
	ErrBadMessage = errors.New("malformed job message")
)

// RefreshMessage is a job message.
type RefreshMessage struct {
	JobType string `json:"job_type"`

	// Points, when set, replaces the configured points for this run.
	Points []MessagePoint `json:"points,omitempty"`
}

// MessagePoint is a point supplied inline with a job.
type MessagePoint struct {
	Lat      float64  `json:"lat"`
	Lon      float64  `json:"lon"`
	Altitude *float64 `json:"altitude,omitempty"`
}

// Dispatcher runs jobs decoded from message payloads.
type Dispatcher struct {
	job              *RefreshJob
	healthCheckPoint Point
	logger           zerolog.Logger
}

// NewDispatcher creates a dispatcher. The health check warms the first
// configured point.
func NewDispatcher(job *RefreshJob, logger zerolog.Logger) *Dispatcher {
	d := &Dispatcher{
		job:              job,
		healthCheckPoint: Point{Lat: 37.7749, Lon: -122.4194},
		logger:           logger,
	}
	if points := job.config.AllPoints(); len(points) > 0 {
		d.healthCheckPoint = points[0]
	}
	return d
}

// Dispatch decodes data and runs the job it names.
func (d *Dispatcher) Dispatch(ctx context.Context, data []byte) error {
	var msg RefreshMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: %w", ErrBadMessage, err)
	}

	switch msg.JobType {
	case JobProviderRefresh:
		return d.handleProviderRefresh(ctx, msg)
	case JobHealthCheck:
		return d.handleHealthCheck(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJob, msg.JobType)
	}
}

func (d *Dispatcher) handleProviderRefresh(ctx context.Context, msg RefreshMessage) error {
	var result *RefreshResult
	if len(msg.Points) > 0 {
		points := make([]Point, 0, len(msg.Points))
		for _, p := range msg.Points {
			points = append(points, Point(p))
		}
		result = d.job.RunPoints(ctx, points)
	} else {
		result = d.job.Run(ctx)
	}

	// Consider it successful unless most points failed.
	if result.Failed > result.Successful {
		return fmt.Errorf("too many refresh failures: %d/%d", result.Failed, result.TotalPoints)
	}
	return nil
}

func (d *Dispatcher) handleHealthCheck(ctx context.Context) error {
	d.logger.Debug().Msg("running health check")

	result := d.job.RunPoints(ctx, []Point{d.healthCheckPoint})
	if result.Failed > 0 {
		return fmt.Errorf("health check failed: %s", result.Errors[0].Error)
	}

	d.logger.Debug().Msg("health check passed")
	return nil
}

// PubSubHandler feeds Pub/Sub messages to a Dispatcher.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	dispatcher       *Dispatcher
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Dispatcher       *Dispatcher
	Logger           zerolog.Logger
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)
	subscriber.ReceiveSettings.MaxOutstandingMessages = 10
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		dispatcher:       cfg.Dispatcher,
		logger:           cfg.Logger,
	}, nil
}

// Start begins processing Pub/Sub messages.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	startTime := time.Now()

	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	err := h.dispatcher.Dispatch(ctx, msg.Data)
	switch {
	case err == nil:
		logger.Info().Dur("duration", time.Since(startTime)).Msg("job completed successfully")
		msg.Ack()
	case errors.Is(err, ErrUnknownJob), errors.Is(err, ErrBadMessage):
		// Redelivery cannot fix these.
		logger.Warn().Err(err).Msg("dropping message")
		msg.Ack()
	default:
		logger.Error().Err(err).Msg("job failed")
		msg.Nack()
	}
}
