package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"gorm.io/gorm"

	"github.com/FredZ6/cloud-project/pkg/config"
	"github.com/FredZ6/cloud-project/pkg/db/models"
	"github.com/FredZ6/cloud-project/pkg/logger"
)

const (
	defaultBatchSize = 50
	maxBackoff       = 10 * time.Second
	jitterWindow     = 250 * time.Millisecond
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type publisher interface {
	Publish(ctx context.Context, exchange, routingKey, messageID string, headers amqp.Table, body []byte) error
	Exchange() string
}

// Dispatcher drains PENDING outbox rows to the broker on a timer. One
// dispatcher runs per process; multiple instances would duplicate publishes,
// which downstream dedup tolerates but does not need.
type Dispatcher struct {
	logg         *logger.Logger
	db           txRunner
	repo         *Repository
	bus          publisher
	batchSize    int
	pollInterval time.Duration
}

type DispatcherParams struct {
	Config    config.OutboxConfig
	Logger    *logger.Logger
	DB        txRunner
	Repo      *Repository
	Publisher publisher
}

func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Repo == nil {
		return nil, errors.New("outbox repository is required")
	}
	if params.Publisher == nil {
		return nil, errors.New("publisher is required")
	}

	batch := params.Config.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}

	return &Dispatcher{
		logg:         params.Logger,
		db:           params.DB,
		repo:         params.Repo,
		bus:          params.Publisher,
		batchSize:    batch,
		pollInterval: params.Config.PollInterval(),
	}, nil
}

// Run polls until ctx is canceled. Publish failures back off with jitter and
// leave the rows PENDING for the next tick.
func (d *Dispatcher) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	interval := d.pollInterval
	backoff := interval

	for {
		select {
		case <-ctx.Done():
			d.logg.Info(ctx, "outbox dispatcher context canceled")
			return ctx.Err()
		default:
		}

		processed, err := d.processBatch(ctx)
		if err != nil {
			d.logg.Error(ctx, "outbox dispatch batch error", err)
			backoff = nextBackoff(backoff, interval, maxBackoff)
			if err := d.sleep(ctx, withJitter(backoff)); err != nil {
				return err
			}
			continue
		}

		backoff = interval

		if processed {
			continue
		}

		if err := d.sleep(ctx, withJitter(interval)); err != nil {
			return err
		}
	}
}

func (d *Dispatcher) processBatch(ctx context.Context) (bool, error) {
	processed := false
	err := d.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := d.repo.FetchPendingTx(tx, d.batchSize)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		processed = true
		for _, row := range rows {
			fields := d.eventFields(row)
			if err := d.publishRow(ctx, row); err != nil {
				logCtx := d.logg.WithFields(ctx, fields)
				logCtx = d.logg.WithField(logCtx, "error", err.Error())
				d.logg.Warn(logCtx, "outbox publish failed")
				if markErr := d.repo.MarkFailedTx(tx, row.ID, err); markErr != nil {
					return markErr
				}
				continue
			}

			if markErr := d.repo.MarkSentTx(tx, row.ID); markErr != nil {
				return markErr
			}
			d.logg.Info(d.logg.WithFields(ctx, fields), "outbox event published")
		}
		return nil
	})
	return processed, err
}

func (d *Dispatcher) publishRow(ctx context.Context, row models.OutboxEvent) error {
	headers := amqp.Table{"x-event-type": row.EventType}

	// Best-effort trace extraction so downstream logs stay correlated.
	var envelope struct {
		EventID string `json:"event_id"`
		TraceID string `json:"trace_id"`
	}
	if err := json.Unmarshal(row.Payload, &envelope); err == nil {
		if envelope.TraceID != "" {
			headers["x-trace-id"] = envelope.TraceID
		}
		if envelope.EventID != "" {
			headers["x-event-id"] = envelope.EventID
		}
	}

	return d.bus.Publish(ctx, d.bus.Exchange(), row.RoutingKey, row.ID.String(), headers, row.Payload)
}

func (d *Dispatcher) eventFields(row models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":   row.ID.String(),
		"event_type":  row.EventType,
		"routing_key": row.RoutingKey,
		"batch_size":  d.batchSize,
	}
	if row.LastError != nil {
		fields["last_error"] = *row.LastError
	}
	return fields
}

func (d *Dispatcher) sleep(ctx context.Context, dur time.Duration) error {
	if dur <= 0 {
		return nil
	}
	timer := time.NewTimer(dur)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	jitter := time.Duration(jitterSource.Int63n(int64(jitterWindow)))
	return d + jitter
}
