package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Controller holds the operator's metric instruments.
type Controller struct {
	jobsCreated     metric.Int64Counter
	createFailures  metric.Int64Counter
	podsCleaned     metric.Int64Counter
	podsProtected   metric.Int64Counter
	deletesFailed   metric.Int64Counter
	handlerDuration metric.Float64Histogram
}

// NewController registers the operator instruments on the given meter.
func NewController(meter metric.Meter) (*Controller, error) {
	var (
		c   Controller
		err error
	)
	if c.jobsCreated, err = meter.Int64Counter("jobop.jobs.created",
		metric.WithDescription("Jobs whose ConfigMap and Pod were created")); err != nil {
		return nil, fmt.Errorf("jobs.created: %w", err)
	}
	if c.createFailures, err = meter.Int64Counter("jobop.jobs.create_failures",
		metric.WithDescription("Jobs that failed permanently during creation")); err != nil {
		return nil, fmt.Errorf("jobs.create_failures: %w", err)
	}
	if c.podsCleaned, err = meter.Int64Counter("jobop.pods.cleaned",
		metric.WithDescription("Finished pods whose cleanup ran")); err != nil {
		return nil, fmt.Errorf("pods.cleaned: %w", err)
	}
	if c.podsProtected, err = meter.Int64Counter("jobop.pods.protected",
		metric.WithDescription("Finished pods kept because of the debug label")); err != nil {
		return nil, fmt.Errorf("pods.protected: %w", err)
	}
	if c.deletesFailed, err = meter.Int64Counter("jobop.deletes.failed",
		metric.WithDescription("Delete calls that failed during cleanup")); err != nil {
		return nil, fmt.Errorf("deletes.failed: %w", err)
	}
	if c.handlerDuration, err = meter.Float64Histogram("jobop.handler.duration",
		metric.WithDescription("Time spent handling one notification"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("handler.duration: %w", err)
	}
	return &c, nil
}

// JobCreated records a job whose dependents were created.
func (c *Controller) JobCreated(ctx context.Context) {
	c.jobsCreated.Add(ctx, 1)
}

// CreateFailed records a permanent creation failure.
func (c *Controller) CreateFailed(ctx context.Context, reason string) {
	c.createFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// PodCleaned records a completed cleanup.
func (c *Controller) PodCleaned(ctx context.Context) {
	c.podsCleaned.Add(ctx, 1)
}

// PodProtected records a finished pod kept for debugging.
func (c *Controller) PodProtected(ctx context.Context) {
	c.podsProtected.Add(ctx, 1)
}

// DeleteFailed records a tolerated delete failure.
func (c *Controller) DeleteFailed(ctx context.Context, resource string) {
	c.deletesFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("resource", resource)))
}

// HandlerDone records how long a notification took to handle.
func (c *Controller) HandlerDone(ctx context.Context, kind, outcome string, d time.Duration) {
	c.handlerDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
}
