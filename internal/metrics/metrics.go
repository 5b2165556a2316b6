// Package metrics holds the OpenTelemetry instruments recorded by the booking core.
package metrics

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/metinatakli/cinex-booking"

var meter = otel.Meter(meterName)

var (
	VersionConflicts = counter("booking.version_conflicts", "Optimistic writes rejected because of a stale version")
	RetriesExhausted = counter("booking.retries_exhausted", "Operations that gave up after the retry budget")
	LockAcquired     = counter("lock.acquired", "Distributed locks acquired")
	LockBusy         = counter("lock.busy", "Lock acquisitions that timed out")
	RateLimited      = counter("ratelimit.rejected", "Requests rejected by a rate limiter")
	SweepProcessed   = counter("scheduler.sweep_processed", "Bookings transitioned by reconciliation sweeps")
	SweepSkipped     = counter("scheduler.sweep_skipped", "Bookings skipped by reconciliation sweeps")
	TasksRejected    = counter("worker.tasks_rejected", "Background tasks rejected by a saturated pool")
)

func counter(name, description string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		otel.Handle(err)
	}
	return c
}

func Operation(name string) metric.AddOption {
	return metric.WithAttributes(attribute.String("operation", name))
}

func Key(name, value string) metric.AddOption {
	return metric.WithAttributes(attribute.String(name, value))
}
