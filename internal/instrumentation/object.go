// Package instrumentation provides Prometheus metrics for s3io objects.
package instrumentation

import (
	"context"
	"errors"
	"time"

	"github.com/cristalhq/hedgedhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/justapithecus/s3io/s3io"
)

const (
	hedgedMetricsPublishDuration = 10 * time.Second

	resultSuccess  = "success"
	resultModified = "modified"
	resultNotFound = "not_found"
	resultError    = "error"
)

var hedgedRequestsMetrics = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "s3io",
		Name:      "backend_hedged_roundtrips_total",
		Help:      "Total number of hedged backend requests.",
	},
)

// PublishHedgedMetrics flushes metrics from hedged requests every 10 seconds
func PublishHedgedMetrics(s *hedgedhttp.Stats) {
	ticker := time.NewTicker(hedgedMetricsPublishDuration)
	go func() {
		for range ticker.C {
			publishHedgedSnapshot(s.Snapshot(), hedgedRequestsMetrics)
		}
	}()
}

func publishHedgedSnapshot(snap hedgedhttp.StatsSnapshot, counter prometheus.Counter) {
	hedgedRequests := int64(snap.ActualRoundTrips) - int64(snap.RequestedRoundTrips)
	if hedgedRequests < 0 {
		hedgedRequests = 0
	}
	counter.Add(float64(hedgedRequests))
}

// Metrics holds the collectors shared by instrumented objects.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	bytes    prometheus.Counter
}

// NewMetrics registers the object metrics with registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	return &Metrics{
		requests: promauto.With(registerer).NewCounterVec(prometheus.CounterOpts{
			Namespace: "s3io",
			Name:      "object_requests_total",
			Help:      "Total number of object requests by operation and result.",
		}, []string{"operation", "result"}),
		duration: promauto.With(registerer).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "s3io",
			Name:      "object_request_duration_seconds",
			Help:      "Time spent on object requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 7),
		}, []string{"operation"}),
		bytes: promauto.With(registerer).NewCounter(prometheus.CounterOpts{
			Namespace: "s3io",
			Name:      "fetched_bytes_total",
			Help:      "Total number of bytes returned by range fetches.",
		}),
	}
}

// Object decorates an s3io.Object with request metrics.
type Object struct {
	next    s3io.Object
	metrics *Metrics
}

// NewObject wraps next so that every call is counted and timed.
func NewObject(next s3io.Object, metrics *Metrics) *Object {
	return &Object{next: next, metrics: metrics}
}

func (o *Object) Key() string {
	return o.next.Key()
}

func (o *Object) ContentLength(ctx context.Context) (int64, error) {
	start := time.Now()
	n, err := o.next.ContentLength(ctx)
	o.observe("content_length", start, err)
	return n, err
}

func (o *Object) LastModified(ctx context.Context) (time.Time, error) {
	start := time.Now()
	t, err := o.next.LastModified(ctx)
	o.observe("last_modified", start, err)
	return t, err
}

func (o *Object) FetchRange(ctx context.Context, start, end int64, ifUnmodifiedSince time.Time) ([]byte, error) {
	begin := time.Now()
	data, err := o.next.FetchRange(ctx, start, end, ifUnmodifiedSince)
	o.observe("fetch_range", begin, err)
	if err == nil {
		o.metrics.bytes.Add(float64(len(data)))
	}
	return data, err
}

func (o *Object) observe(op string, start time.Time, err error) {
	o.metrics.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	o.metrics.requests.WithLabelValues(op, result(err)).Inc()
}

func result(err error) string {
	switch {
	case err == nil:
		return resultSuccess
	case errors.Is(err, s3io.ErrPreconditionFailed):
		return resultModified
	case errors.Is(err, s3io.ErrNotFound):
		return resultNotFound
	default:
		return resultError
	}
}

// Ensure Object implements s3io.Object
var _ s3io.Object = (*Object)(nil)
