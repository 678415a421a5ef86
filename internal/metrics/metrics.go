// Copyright 2023 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics maintains the otel counters and histograms snapfsd
// exposes over /metrics: one counter/histogram pair per IPC op, plus
// observable counters for the free-block bitmap. The attribute-set caching and
// Int64ObservableCounter wiring follow the usual otel
// attribute-cached-counter pattern; OpKey is this repo's analogue of the
// upstream FSOpKey attribute.
package metrics

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OpKey annotates a recorded measurement with the IPC op it came from.
const OpKey = "op"

var opAttributeSet sync.Map

func attrSetFor(op string) metric.MeasurementOption {
	if v, ok := opAttributeSet.Load(op); ok {
		return v.(metric.MeasurementOption)
	}
	v, _ := opAttributeSet.LoadOrStore(op, metric.WithAttributeSet(attribute.NewSet(attribute.String(OpKey, op))))
	return v.(metric.MeasurementOption)
}

// defaultLatencyDistribution mirrors typical request-latency bucket boundaries,
// tuned for microsecond-scale in-process request latencies.
var defaultLatencyDistribution = metric.WithExplicitBucketBoundaries(
	1, 2, 3, 4, 5, 6, 8, 10, 13, 16, 20, 25, 30, 40, 50, 65, 80, 100,
	130, 160, 200, 250, 300, 400, 500, 650, 800, 1000, 2000, 5000, 10000,
)

// Handle is the set of instruments Server records against on every
// dispatched request.
type Handle struct {
	opsCount      metric.Int64Counter
	opsErrorCount metric.Int64Counter
	opsLatency    metric.Float64Histogram

	freeBlocksAtomic  *atomic.Int64
	totalBlocksAtomic *atomic.Int64
}

// New registers snapfs's instruments against the global otel MeterProvider
// (wired by cmd/snapfsd to the prometheus exporter from go.mod). Call once
// per process, after the provider is installed.
func New() (*Handle, error) {
	opsMeter := otel.Meter("snapfs/ops")
	opsCount, err1 := opsMeter.Int64Counter("snapfs/ops_count",
		metric.WithDescription("The cumulative number of IPC requests dispatched by op."))
	opsErrorCount, err2 := opsMeter.Int64Counter("snapfs/ops_error_count",
		metric.WithDescription("The cumulative number of IPC requests that returned an error, by op."))
	opsLatency, err3 := opsMeter.Float64Histogram("snapfs/ops_latency",
		metric.WithDescription("The distribution of IPC request latencies by op."),
		metric.WithUnit("us"),
		defaultLatencyDistribution)

	var freeBlocks, totalBlocks atomic.Int64
	_, err4 := opsMeter.Int64ObservableCounter("snapfs/free_blocks",
		metric.WithDescription("Free blocks remaining in the bitmap as of the last Df call."),
		metric.WithInt64Callback(func(_ context.Context, obsrv metric.Int64Observer) error {
			obsrv.Observe(freeBlocks.Load())
			return nil
		}))
	_, err5 := opsMeter.Int64ObservableCounter("snapfs/total_blocks",
		metric.WithDescription("Total blocks in the mounted disk image."),
		metric.WithInt64Callback(func(_ context.Context, obsrv metric.Int64Observer) error {
			obsrv.Observe(totalBlocks.Load())
			return nil
		}))

	for _, err := range []error{err1, err2, err3, err4, err5} {
		if err != nil {
			return nil, err
		}
	}

	return &Handle{
		opsCount:          opsCount,
		opsErrorCount:     opsErrorCount,
		opsLatency:        opsLatency,
		freeBlocksAtomic:  &freeBlocks,
		totalBlocksAtomic: &totalBlocks,
	}, nil
}

// RecordOp records one dispatched request's latency and, if err is
// non-nil, bumps the per-op error counter alongside the count.
func (h *Handle) RecordOp(op string, start time.Time, err error) {
	ctx := context.Background()
	attrs := attrSetFor(op)
	h.opsCount.Add(ctx, 1, attrs)
	h.opsLatency.Record(ctx, float64(time.Since(start).Microseconds()), attrs)
	if err != nil {
		h.opsErrorCount.Add(ctx, 1, attrs)
	}
}

// SetDiskUsage updates the values the free/total block observable counters
// report, called after every Df.
func (h *Handle) SetDiskUsage(free, total uint32) {
	h.freeBlocksAtomic.Store(int64(free))
	h.totalBlocksAtomic.Store(int64(total))
}
