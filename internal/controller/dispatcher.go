package controller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"jobop/internal/logger"
	"jobop/internal/observability"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/util/workqueue"
)

// Kind is the kind of object a notification is about.
type Kind string

const (
	KindJob Kind = "job"
	KindPod Kind = "pod"
)

// Notification is one delivered event for a job or a managed pod.
type Notification struct {
	Kind   Kind
	Type   watch.EventType
	Object runtime.Object
}

// Handler handles one notification. A nil error completes it, a permanent
// error drops it and any other error schedules a retry.
type Handler func(ctx context.Context, n *Notification) error

// DispatcherConfig holds the dispatcher's concurrency and retry policy.
type DispatcherConfig struct {
	Concurrency    int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	MaxRetries     int
	QPS            float64
	Burst          int
}

// Dispatcher runs every notification on its own goroutine and re-enqueues
// transient failures with backoff. Each kind has its own concurrency limit,
// so pods waiting out their grace delay never hold up job creations.
type Dispatcher struct {
	queue    workqueue.TypedRateLimitingInterface[*Notification]
	handlers map[Kind]Handler
	slots    map[Kind]chan struct{}
	config   DispatcherConfig
	log      *slog.Logger
	metrics  *observability.Controller
	done     chan struct{}
}

// NewDispatcher creates a Dispatcher. Register handlers before calling Run.
func NewDispatcher(config DispatcherConfig, log *slog.Logger, metrics *observability.Controller) *Dispatcher {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.RetryBaseDelay <= 0 {
		config.RetryBaseDelay = time.Second
	}
	if config.RetryMaxDelay < config.RetryBaseDelay {
		config.RetryMaxDelay = config.RetryBaseDelay
	}
	if config.QPS <= 0 {
		config.QPS = 10
	}
	if config.Burst <= 0 {
		config.Burst = 100
	}

	limiter := workqueue.NewTypedMaxOfRateLimiter(
		workqueue.NewTypedItemExponentialFailureRateLimiter[*Notification](config.RetryBaseDelay, config.RetryMaxDelay),
		&workqueue.TypedBucketRateLimiter[*Notification]{Limiter: rate.NewLimiter(rate.Limit(config.QPS), config.Burst)},
	)

	return &Dispatcher{
		queue: workqueue.NewTypedRateLimitingQueueWithConfig(limiter, workqueue.TypedRateLimitingQueueConfig[*Notification]{
			Name: "jobop",
		}),
		handlers: map[Kind]Handler{},
		slots:    map[Kind]chan struct{}{},
		config:   config,
		log:      log,
		metrics:  metrics,
		done:     make(chan struct{}),
	}
}

// Handle registers the handler for a kind of notification.
func (d *Dispatcher) Handle(kind Kind, h Handler) {
	d.handlers[kind] = h
	d.slots[kind] = make(chan struct{}, d.config.Concurrency)
}

// Enqueue adds a notification. It never blocks.
func (d *Dispatcher) Enqueue(n *Notification) {
	d.queue.Add(n)
}

// Run dispatches notifications until ctx is cancelled. Notifications still
// queued at that point are dropped and in-flight handlers see a cancelled
// context.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)

	go func() {
		<-ctx.Done()
		d.queue.ShutDown()
	}()

	var wg sync.WaitGroup

	for {
		n, shutdown := d.queue.Get()
		if shutdown {
			break
		}
		if ctx.Err() != nil {
			d.drop(n)
			continue
		}

		// The slot is taken inside the goroutine so a full pool for one
		// kind never blocks Get for the others.
		wg.Add(1)
		go func(n *Notification) {
			defer wg.Done()
			if slots, ok := d.slots[n.Kind]; ok {
				select {
				case slots <- struct{}{}:
					defer func() { <-slots }()
				case <-ctx.Done():
					d.drop(n)
					return
				}
			}
			d.process(ctx, n)
		}(n)
	}

	d.log.Info("Dispatcher stopping, waiting for running handlers to finish...")
	wg.Wait()
}

func (d *Dispatcher) drop(n *Notification) {
	d.queue.Forget(n)
	d.queue.Done(n)
}

// Done returns a channel that is closed when Run has returned.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

func (d *Dispatcher) process(ctx context.Context, n *Notification) {
	defer d.queue.Done(n)

	ctx = logger.WithCorrelationID(ctx)
	log := logger.FromContext(ctx, d.log).With("kind", n.Kind, "event_type", n.Type)
	name, namespace := "", ""
	if m, err := meta.Accessor(n.Object); err == nil {
		name, namespace = m.GetName(), m.GetNamespace()
		log = log.With("namespace", namespace, "name", name)
	}

	handler, ok := d.handlers[n.Kind]
	if !ok {
		log.Error("No handler registered, dropping notification")
		d.queue.Forget(n)
		return
	}

	tracer := otel.Tracer("jobop-dispatcher")
	ctx, span := tracer.Start(ctx, "handle_"+string(n.Kind),
		trace.WithAttributes(
			attribute.String("notification.kind", string(n.Kind)),
			attribute.String("notification.type", string(n.Type)),
			attribute.String("object.namespace", namespace),
			attribute.String("object.name", name),
			attribute.String("correlation_id", logger.CorrelationIDFromContext(ctx)),
		),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	defer span.End()

	start := time.Now()
	err := handler(ctx, n)

	outcome := "ok"
	switch {
	case err == nil:
		d.queue.Forget(n)
	case IsPermanent(err):
		outcome = "permanent"
		d.queue.Forget(n)
		log.Error("Permanent failure, not retrying", "error", err)
	case ctx.Err() != nil:
		outcome = "cancelled"
		d.queue.Forget(n)
		log.Warn("Handler interrupted by shutdown", "error", err)
	case d.queue.NumRequeues(n) < d.config.MaxRetries:
		outcome = "retry"
		log.Warn("Transient failure, retrying", "error", err, "attempt", d.queue.NumRequeues(n)+1)
		d.queue.AddRateLimited(n)
	default:
		outcome = "dropped"
		d.queue.Forget(n)
		log.Error("Giving up after retries", "error", err, "retries", d.config.MaxRetries)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	d.metrics.HandlerDone(ctx, string(n.Kind), outcome, time.Since(start))
}
