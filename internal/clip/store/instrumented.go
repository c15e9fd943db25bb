// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/streamclip/clipd/internal/clip"
)

var (
	storeOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipd_store_ops_total",
			Help: "Total job registry operations",
		},
		[]string{"op", "result"}, // result=success/error
	)
	storeLat = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clipd_store_op_seconds",
			Help:    "Job registry operation latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
)

// instrumentedStore wraps any Store to capture metrics.
type instrumentedStore struct {
	inner Store
}

// NewInstrumentedStore wraps inner with operation counters and latency
// histograms.
func NewInstrumentedStore(inner Store) Store {
	return &instrumentedStore{inner: inner}
}

func (i *instrumentedStore) observe(op string, start time.Time, err error) {
	res := "success"
	if err != nil {
		res = "error"
	}
	storeOps.WithLabelValues(op, res).Inc()
	storeLat.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (i *instrumentedStore) Create(ctx context.Context) (job *clip.Job, err error) {
	start := time.Now()
	defer func() { i.observe("create", start, err) }()
	return i.inner.Create(ctx)
}

func (i *instrumentedStore) Get(ctx context.Context, id string) (job *clip.Job, err error) {
	start := time.Now()
	defer func() { i.observe("get", start, err) }()
	return i.inner.Get(ctx, id)
}

func (i *instrumentedStore) Update(ctx context.Context, id string, fn func(*clip.Job) error) (job *clip.Job, err error) {
	start := time.Now()
	defer func() { i.observe("update", start, err) }()
	return i.inner.Update(ctx, id, fn)
}

func (i *instrumentedStore) List(ctx context.Context) (list []*clip.Job, err error) {
	start := time.Now()
	defer func() { i.observe("list", start, err) }()
	return i.inner.List(ctx)
}
