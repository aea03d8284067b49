package mirror

import (
	"fmt"
	"io"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

// storeMetrics holds the metric handles of one store.
// Metrics live in the default VictoriaMetrics set and are shared by all mirrors of a store name.
type storeMetrics struct {
	store        string
	syncDuration *metrics.Histogram
	syncRecords  *metrics.Counter
}

func newStoreMetrics(store string) *storeMetrics {
	return &storeMetrics{
		store:        store,
		syncDuration: metrics.GetOrCreateHistogram(fmt.Sprintf(`dmirror_sync_duration_seconds{store=%q}`, store)),
		syncRecords:  metrics.GetOrCreateCounter(fmt.Sprintf(`dmirror_sync_records_total{store=%q}`, store)),
	}
}

func (m *storeMetrics) persistOp(op string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`dmirror_persist_ops_total{store=%q,op=%q}`, m.store, op)).Inc()
}

func (m *storeMetrics) persistError(op string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`dmirror_persist_errors_total{store=%q,op=%q}`, m.store, op)).Inc()
}

func (m *storeMetrics) synced(start time.Time, records int) {
	m.syncDuration.UpdateDuration(start)
	m.syncRecords.Add(records)
}

// WritePrometheus writes all mirror metrics in the Prometheus text format.
func WritePrometheus(w io.Writer) {
	metrics.WritePrometheus(w, false)
}
