package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"FileShare/config"
	"FileShare/internal/mq"
	"FileShare/internal/storage"
	"FileShare/internal/task"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/time/rate"
)

type dlqMessage struct {
	Locator  string    `json:"locator"`
	Reason   string    `json:"reason"`
	Attempt  int       `json:"attempt"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

// retryPublisher is the part of mq.Client used for follow-up publishes.
type retryPublisher interface {
	PublishRetry(ctx context.Context, body []byte, delay time.Duration) error
	PublishDLQ(ctx context.Context, body []byte) error
}

// CleanupWorker deletes orphaned blobs queued by the API.
type CleanupWorker struct {
	store       storage.BlobStore
	logger      *slog.Logger
	prefetch    int
	concurrency int
	limiter     *rate.Limiter
	retryMax    int
	retryDelays []time.Duration
}

func NewCleanupWorker(cfg *config.Config, store storage.BlobStore, logger *slog.Logger) *CleanupWorker {
	prefetch := cfg.RabbitMQPrefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	concurrency := cfg.CleanupWorkerConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	burst := cfg.CleanupBurst
	if burst <= 0 {
		burst = 1
	}
	var limiter *rate.Limiter
	if cfg.CleanupRate <= 0 {
		limiter = rate.NewLimiter(rate.Inf, burst)
	} else {
		limiter = rate.NewLimiter(rate.Limit(cfg.CleanupRate), burst)
	}
	retryMax := cfg.CleanupRetryMax
	if retryMax < 0 {
		retryMax = 0
	}
	return &CleanupWorker{
		store:       store,
		logger:      logger,
		prefetch:    prefetch,
		concurrency: concurrency,
		limiter:     limiter,
		retryMax:    retryMax,
		retryDelays: cfg.CleanupRetryDelays,
	}
}

// Run consumes cleanup tasks until ctx is canceled.
func (w *CleanupWorker) Run(ctx context.Context, client *mq.Client) error {
	if err := client.DeclareTopology(); err != nil {
		return err
	}
	if err := client.Channel.Qos(w.prefetch, 0, false); err != nil {
		return err
	}

	deliveries, err := client.Channel.Consume(
		mq.QueueTasks,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	return w.consume(ctx, deliveries, func(ctx context.Context, d amqp.Delivery) {
		w.handleDelivery(ctx, client, d)
	})
}

// consume dispatches deliveries with bounded concurrency and waits for the
// in-flight handlers before returning, so their acks reach the channel.
func (w *CleanupWorker) consume(ctx context.Context, deliveries <-chan amqp.Delivery, handle func(context.Context, amqp.Delivery)) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	sem := make(chan struct{}, w.concurrency)
	for {
		select {
		case <-ctx.Done():
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("cleanup worker: delivery channel closed")
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				// Unacked deliveries are redelivered once the channel closes.
				return nil
			}
			wg.Add(1)
			go func(d amqp.Delivery) {
				defer wg.Done()
				defer func() { <-sem }()
				handle(ctx, d)
			}(delivery)
		}
	}
}

func (w *CleanupWorker) handleDelivery(ctx context.Context, client retryPublisher, delivery amqp.Delivery) {
	switch w.handleMessage(ctx, client, delivery.Body) {
	case outcomeRequeue:
		_ = delivery.Nack(false, true)
	default:
		_ = delivery.Ack(false)
	}
}

type outcome int

const (
	outcomeAck outcome = iota
	outcomeRequeue
)

func (w *CleanupWorker) handleMessage(ctx context.Context, client retryPublisher, body []byte) outcome {
	var msg task.CleanupMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		w.logger.Warn("cleanup worker: invalid message", slog.Any("error", err))
		return outcomeAck
	}

	if err := w.limiter.Wait(ctx); err != nil {
		return outcomeRequeue
	}

	err := task.ProcessCleanupTask(ctx, w.store, msg)
	if err == nil {
		w.logger.Info("blob cleaned up",
			slog.String("locator", msg.Locator),
			slog.String("reason", msg.Reason),
			slog.Int("attempt", msg.Attempt),
		)
		return outcomeAck
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return outcomeRequeue
	}
	if shouldRetry(err) {
		err = w.scheduleRetry(ctx, client, msg, err)
	} else {
		err = w.markFailed(ctx, client, msg, err)
	}
	if err != nil {
		w.logger.Error("cleanup worker: follow-up publish failed", slog.String("locator", msg.Locator), slog.Any("error", err))
		return outcomeRequeue
	}
	return outcomeAck
}

func shouldRetry(err error) bool {
	return !errors.Is(err, storage.ErrInvalidLocator)
}

func (w *CleanupWorker) scheduleRetry(ctx context.Context, client retryPublisher, msg task.CleanupMessage, procErr error) error {
	nextAttempt := msg.Attempt + 1
	if w.retryMax == 0 || nextAttempt > w.retryMax {
		return w.markFailed(ctx, client, msg, procErr)
	}

	delay := pickRetryDelay(nextAttempt, w.retryDelays)
	w.logger.Warn("cleanup failed, retrying",
		slog.String("locator", msg.Locator),
		slog.Int("attempt", nextAttempt),
		slog.Duration("delay", delay),
		slog.Any("error", procErr),
	)

	msg.Attempt = nextAttempt
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return client.PublishRetry(ctx, body, delay)
}

func (w *CleanupWorker) markFailed(ctx context.Context, client retryPublisher, msg task.CleanupMessage, procErr error) error {
	w.logger.Error("cleanup gave up",
		slog.String("locator", msg.Locator),
		slog.Int("attempt", msg.Attempt),
		slog.Any("error", procErr),
	)
	dlq := dlqMessage{
		Locator:  msg.Locator,
		Reason:   msg.Reason,
		Attempt:  msg.Attempt,
		Error:    procErr.Error(),
		FailedAt: time.Now(),
	}
	body, err := json.Marshal(dlq)
	if err != nil {
		return err
	}
	if err := client.PublishDLQ(ctx, body); err != nil {
		w.logger.Error("cleanup worker: dlq publish failed", slog.Any("error", err))
	}
	return nil
}

func pickRetryDelay(attempt int, delays []time.Duration) time.Duration {
	if len(delays) == 0 {
		return 0
	}
	index := attempt - 1
	if index < 0 {
		index = 0
	}
	if index >= len(delays) {
		return delays[len(delays)-1]
	}
	return delays[index]
}
