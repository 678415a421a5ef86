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

package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func setupOTel(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)
	return reader
}

func sumFor(t *testing.T, rm *metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				var total int64
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
				return total
			}
		}
	}
	return 0
}

func TestRecordOp_CountsSuccessAndErrorSeparately(t *testing.T) {
	reader := setupOTel(t)
	h, err := New()
	require.NoError(t, err)

	h.RecordOp("OPEN", time.Now(), nil)
	h.RecordOp("OPEN", time.Now(), nil)
	h.RecordOp("OPEN", time.Now(), errors.New("boom"))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	require.Equal(t, int64(3), sumFor(t, &rm, "snapfs/ops_count"))
	require.Equal(t, int64(1), sumFor(t, &rm, "snapfs/ops_error_count"))
}

func TestSetDiskUsage_ReportsLatestValueViaObservableCounters(t *testing.T) {
	reader := setupOTel(t)
	h, err := New()
	require.NoError(t, err)

	h.SetDiskUsage(12, 100)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	require.Equal(t, int64(12), sumFor(t, &rm, "snapfs/free_blocks"))
	require.Equal(t, int64(100), sumFor(t, &rm, "snapfs/total_blocks"))
}
