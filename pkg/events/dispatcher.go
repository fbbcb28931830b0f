package events

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"account-ledger/pkg/ledger"
	"account-ledger/pkg/logging"
	"account-ledger/pkg/metrics"

	"go.uber.org/zap"
)

// Dispatcher hands events to a Publisher from a bounded queue served by a
// worker pool. Events for the same account always go through the same worker,
// so a sink sees them in the order they were applied.
type Dispatcher struct {
	publisher  Publisher
	shards     []chan TransactionApplied
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc
	closeOnce  sync.Once
	closeMu    sync.RWMutex
	closed     bool
	config     DispatcherConfig
	metrics    metrics.MetricsCollector
	logger     *logging.Logger
	sinkName   string

	// Statistics (accessed atomically)
	pending   int64
	dropped   int64
	total     int64
	failed    int64
	published int64

	metricsTicker *time.Ticker
	metricsStop   chan struct{}
}

// DispatcherConfig configures the dispatcher.
type DispatcherConfig struct {
	// QueueSize is the total queue capacity across workers (default: 1000)
	QueueSize int

	// Workers is the number of concurrent publishers (default: 2)
	Workers int

	// MaxWaitTime bounds how long Dispatch blocks on a full queue before
	// dropping the event (default: 10ms)
	MaxWaitTime time.Duration

	// PublishTimeout bounds a single Publish call made by a worker (default: 5s)
	PublishTimeout time.Duration

	// ReportInterval is how often the queue depth is reported (default: 5s)
	ReportInterval time.Duration

	// Metrics collector (optional)
	Metrics metrics.MetricsCollector

	// Logger (optional)
	Logger *logging.Logger
}

// DefaultDispatcherConfig returns the default dispatcher settings.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		QueueSize:      1000,
		Workers:        2,
		MaxWaitTime:    10 * time.Millisecond,
		PublishTimeout: 5 * time.Second,
		ReportInterval: 5 * time.Second,
	}
}

// NewDispatcher starts a dispatcher for publisher. It must be closed with Close.
func NewDispatcher(publisher Publisher, config DispatcherConfig) *Dispatcher {
	defaults := DefaultDispatcherConfig()
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.MaxWaitTime == 0 {
		config.MaxWaitTime = defaults.MaxWaitTime
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = defaults.PublishTimeout
	}
	if config.ReportInterval <= 0 {
		config.ReportInterval = defaults.ReportInterval
	}
	if config.Metrics == nil {
		config.Metrics = metrics.NoOpCollector{}
	}
	if config.Logger == nil {
		config.Logger = logging.L().Named("events")
	}

	perShard := config.QueueSize / config.Workers
	if perShard < 1 {
		perShard = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Dispatcher{
		publisher:     publisher,
		shards:        make([]chan TransactionApplied, config.Workers),
		ctx:           ctx,
		cancelFunc:    cancel,
		config:        config,
		metrics:       config.Metrics,
		logger:        config.Logger.With(zap.String("sink", publisher.Name())),
		sinkName:      publisher.Name(),
		metricsTicker: time.NewTicker(config.ReportInterval),
		metricsStop:   make(chan struct{}),
	}

	for i := range d.shards {
		d.shards[i] = make(chan TransactionApplied, perShard)
		d.wg.Add(1)
		go d.worker(d.shards[i])
	}

	go d.reportMetrics()

	return d
}

// TransactionApplied implements ledger.Observer. A dropped event is logged
// and counted; the transaction itself is unaffected.
func (d *Dispatcher) TransactionApplied(ctx context.Context, tx ledger.Transaction, account ledger.Account, opened bool) {
	event := NewTransactionApplied(tx, account, opened)
	if err := d.Dispatch(ctx, event); err != nil {
		d.logger.Warn("transaction event not dispatched",
			zap.String("transaction_id", event.TransactionID),
			zap.String("account_id", event.AccountID),
			zap.Error(err),
		)
	}
}

// Dispatch enqueues an event. If the queue is full it waits up to MaxWaitTime
// and then drops the event with ErrQueueFull.
func (d *Dispatcher) Dispatch(ctx context.Context, event TransactionApplied) error {
	// Held until the event is queued or dropped, so Close never stops the
	// workers with a send still in progress.
	d.closeMu.RLock()
	defer d.closeMu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	shard := d.shards[d.shardFor(event.AccountID)]

	atomic.AddInt64(&d.pending, 1)

	// Fast path: no timer when there is room.
	select {
	case shard <- event:
		atomic.AddInt64(&d.total, 1)
		return nil
	default:
	}

	if d.config.MaxWaitTime < 0 {
		return d.drop()
	}

	timer := time.NewTimer(d.config.MaxWaitTime)
	defer timer.Stop()

	select {
	case shard <- event:
		atomic.AddInt64(&d.total, 1)
		return nil
	case <-timer.C:
		return d.drop()
	case <-ctx.Done():
		atomic.AddInt64(&d.pending, -1)
		return ctx.Err()
	}
}

func (d *Dispatcher) drop() error {
	atomic.AddInt64(&d.pending, -1)
	atomic.AddInt64(&d.dropped, 1)
	d.metrics.RecordEventDropped(d.sinkName)
	return ErrQueueFull
}

func (d *Dispatcher) shardFor(accountID string) int {
	if len(d.shards) == 1 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(accountID))
	return int(h.Sum32() % uint32(len(d.shards)))
}

// worker publishes events from one shard until the dispatcher is closed and
// the shard is drained.
func (d *Dispatcher) worker(queue chan TransactionApplied) {
	defer d.wg.Done()

	for {
		select {
		case event := <-queue:
			d.publish(event)
		case <-d.ctx.Done():
			for {
				select {
				case event := <-queue:
					d.publish(event)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) publish(event TransactionApplied) {
	defer atomic.AddInt64(&d.pending, -1)

	ctx, cancel := context.WithTimeout(context.Background(), d.config.PublishTimeout)
	defer cancel()

	start := time.Now()
	err := d.publisher.Publish(ctx, event)
	duration := time.Since(start)

	d.metrics.RecordEventPublished(d.sinkName, err == nil, duration)

	if err != nil {
		atomic.AddInt64(&d.failed, 1)
		d.logger.Error("publish failed",
			zap.String("transaction_id", event.TransactionID),
			zap.String("account_id", event.AccountID),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return
	}
	atomic.AddInt64(&d.published, 1)
}

// Flush waits until every accepted event has been published (or has failed),
// or until timeout.
func (d *Dispatcher) Flush(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for {
		if atomic.LoadInt64(&d.pending) == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrFlushTimeout
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// Close stops accepting events, publishes what is queued and closes the
// publisher. It is safe to call more than once.
func (d *Dispatcher) Close() error {
	var err error
	d.closeOnce.Do(func() {
		close(d.metricsStop)
		d.metricsTicker.Stop()

		d.closeMu.Lock()
		d.closed = true
		d.closeMu.Unlock()

		d.cancelFunc()
		d.wg.Wait()

		err = d.publisher.Close()

		stats := d.Stats()
		d.logger.Info("dispatcher closed",
			zap.Int64("published", stats.Published),
			zap.Int64("failed", stats.Failed),
			zap.Int64("dropped", stats.Dropped),
		)
	})
	return err
}

// Name returns the sink name.
func (d *Dispatcher) Name() string {
	return d.sinkName
}

func (d *Dispatcher) queueDepth() int {
	depth := 0
	for _, shard := range d.shards {
		depth += len(shard)
	}
	return depth
}

func (d *Dispatcher) reportMetrics() {
	for {
		select {
		case <-d.metricsTicker.C:
			d.metrics.RecordQueueDepth(d.sinkName, d.queueDepth())
		case <-d.metricsStop:
			return
		}
	}
}

// Stats returns current dispatcher statistics.
func (d *Dispatcher) Stats() DispatcherStats {
	return DispatcherStats{
		QueueDepth: d.queueDepth(),
		Dispatched: atomic.LoadInt64(&d.total),
		Published:  atomic.LoadInt64(&d.published),
		Failed:     atomic.LoadInt64(&d.failed),
		Dropped:    atomic.LoadInt64(&d.dropped),
	}
}

var _ ledger.Observer = (*Dispatcher)(nil)
