// Package notify fans opened alerts out to the external notification
// dispatcher over Kafka. Publish failures never affect ingestion outcomes.
package notify

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"aquasense/internal/logger"
	"aquasense/internal/metrics"
	"aquasense/internal/models"
)

// Notification is the message published for one opened alert. The rule's
// notification methods travel along so the dispatcher knows which channels
// to use.
type Notification struct {
	Alert    *models.Alert         `json:"alert"`
	Methods  []models.NotifyMethod `json:"methods,omitempty"`
	QueuedAt time.Time             `json:"queued_at"`
}

// Publisher delivers notification batches to the broker.
type Publisher interface {
	Publish(ctx context.Context, n *Notification) error
	PublishBatch(ctx context.Context, batch []*Notification) error
	Close() error
}

// Notifier buffers opened alerts and publishes them from a worker pool,
// batching for throughput. A full queue drops the notification with a
// warning rather than blocking the ingestion path.
type Notifier struct {
	publisher    Publisher
	queue        chan *Notification
	workers      int
	batchSize    int
	batchTimeout time.Duration

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	published atomic.Uint64
	dropped   atomic.Uint64
}

// Config holds notifier configuration.
type Config struct {
	Publisher    Publisher
	QueueSize    int
	Workers      int
	BatchSize    int
	BatchTimeout time.Duration
}

// NewNotifier creates a notifier; call Start before enqueueing.
func NewNotifier(cfg Config) *Notifier {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 200 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Notifier{
		publisher:    cfg.Publisher,
		queue:        make(chan *Notification, cfg.QueueSize),
		workers:      cfg.Workers,
		batchSize:    cfg.BatchSize,
		batchTimeout: cfg.BatchTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Enqueue queues a notification for an opened alert. Never blocks; drops
// when the queue is full. Safe to use as the engine's OpenedSink.
func (n *Notifier) Enqueue(alert *models.Alert, rule *models.AlertRule) {
	notification := &Notification{
		Alert:    alert,
		QueuedAt: time.Now().UTC(),
	}
	if rule != nil {
		notification.Methods = rule.NotifyMethods
	}
	select {
	case n.queue <- notification:
		metrics.NotifyQueueSize.Set(float64(len(n.queue)))
	default:
		n.dropped.Add(1)
		metrics.NotifyPublishTotal.WithLabelValues("dropped").Inc()
		logger.WithComponent("notify").Warn().
			Str("alert_id", alert.ID).
			Msg("notification queue full, dropping")
	}
}

// Start launches the worker pool.
func (n *Notifier) Start() {
	log := logger.WithComponent("notify")
	log.Info().
		Int("workers", n.workers).
		Int("batch_size", n.batchSize).
		Dur("batch_timeout", n.batchTimeout).
		Msg("starting notifier")

	for i := 0; i < n.workers; i++ {
		n.wg.Add(1)
		go n.worker(i)
	}
}

// Stop drains in-flight batches and stops the workers.
func (n *Notifier) Stop() {
	log := logger.WithComponent("notify")
	log.Info().Msg("stopping notifier")
	n.cancel()
	n.wg.Wait()
	log.Info().Msg("notifier stopped")
}

func (n *Notifier) worker(id int) {
	defer n.wg.Done()

	log := logger.WithComponent("notify").With().Int("worker_id", id).Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("notify worker panic recovered")
			metrics.PanicsRecovered.WithLabelValues("notify_worker").Inc()
		}
	}()

	batch := make([]*Notification, 0, n.batchSize)
	timer := time.NewTimer(n.batchTimeout)
	defer timer.Stop()

	for {
		select {
		case <-n.ctx.Done():
			n.flush(batch)
			return

		case notification, ok := <-n.queue:
			if !ok {
				n.flush(batch)
				return
			}
			batch = append(batch, notification)
			metrics.NotifyQueueSize.Set(float64(len(n.queue)))
			if len(batch) >= n.batchSize {
				n.flush(batch)
				batch = batch[:0]
				timer.Reset(n.batchTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				n.flush(batch)
				batch = batch[:0]
			}
			timer.Reset(n.batchTimeout)
		}
	}
}

func (n *Notifier) flush(batch []*Notification) {
	if len(batch) == 0 {
		return
	}

	log := logger.WithComponent("notify")
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := n.publisher.PublishBatch(ctx, batch)
	metrics.NotifyPublishDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		log.Error().
			Err(err).
			Int("batch_size", len(batch)).
			Msg("failed to publish notification batch")
		metrics.NotifyPublishTotal.WithLabelValues("failed").Add(float64(len(batch)))

		// Fallback: publish individually so one bad message cannot sink
		// the whole batch.
		n.publishIndividually(batch)
		return
	}

	n.published.Add(uint64(len(batch)))
	metrics.NotifyPublishTotal.WithLabelValues("success").Add(float64(len(batch)))
}

func (n *Notifier) publishIndividually(batch []*Notification) {
	log := logger.WithComponent("notify")
	for _, notification := range batch {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := n.publisher.Publish(ctx, notification)
		cancel()
		if err != nil {
			log.Error().
				Err(err).
				Str("alert_id", notification.Alert.ID).
				Msg("failed to publish notification")
			continue
		}
		n.published.Add(1)
		metrics.NotifyPublishTotal.WithLabelValues("success").Inc()
	}
}

// Stats reports notifier counters.
func (n *Notifier) Stats() Stats {
	return Stats{
		Published: n.published.Load(),
		Dropped:   n.dropped.Load(),
	}
}

// Stats holds notifier counters.
type Stats struct {
	Published uint64
	Dropped   uint64
}
