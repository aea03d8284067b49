package mirror

import (
	"github.com/ValentinKolb/dMirror/lib/util"
)

// CollectionInfo describes the in-memory state of one collection
type CollectionInfo struct {
	Name          string   `json:"name"`
	KeyField      string   `json:"key_field"`
	AutoIncrement bool     `json:"auto_increment"`
	Unique        []string `json:"unique,omitempty"`
	Records       int      `json:"records"`
	Bytes         int64    `json:"bytes"` // estimated
}

// SizeBucket is the share of records (in percent) with an estimated size up to UpTo
// bytes. The last bucket has UpTo 0 and holds all larger records.
type SizeBucket struct {
	UpTo    int     `json:"up_to"`
	Percent float64 `json:"percent"`
}

// Info describes the in-memory state of a mirror
type Info struct {
	Store         string           `json:"store"`
	Open          bool             `json:"open"`
	Ready         bool             `json:"ready"`
	Collections   []CollectionInfo `json:"collections"`
	Records       int              `json:"records"`
	PendingWrites int              `json:"pending_writes"`

	// Record size estimates over all collections
	TotalBytes    int64        `json:"total_bytes"`
	AvgRecordSize int          `json:"avg_record_size"`
	P50RecordSize int `json:"p50_record_size"`
	P99RecordSize int `json:"p99_record_size"`
	SizeBuckets   []SizeBucket `json:"size_buckets,omitempty"`

	// Spread of the record counts over the collections
	Distribution util.DistributionStats `json:"distribution"`
}

// Info returns statistics about the mirror. Sizes are estimates, see record.SizeEstimate.
func (m *Mirror) Info() Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info := Info{
		Store:       m.name,
		Open:        m.open,
		Ready:       m.open && m.ready,
		Collections: make([]CollectionInfo, 0, len(m.collections)),
	}
	if m.writer != nil {
		info.PendingWrites = m.writer.pending()
	}

	sizes := util.NewSizeHistogram()
	counts := make([]float64, 0, len(m.collections))
	for _, name := range m.collectionNames() {
		c := m.collections[name]
		ci := CollectionInfo{
			Name:          name,
			KeyField:      c.cfg.KeyField,
			AutoIncrement: c.cfg.AutoIncrement,
			Unique:        c.cfg.Unique,
			Records:       len(c.records),
		}
		for _, r := range c.records {
			size := r.SizeEstimate()
			sizes.AddSample(size)
			ci.Bytes += int64(size)
		}
		info.Records += ci.Records
		info.Collections = append(info.Collections, ci)
		counts = append(counts, float64(ci.Records))
	}

	info.Distribution = util.NewDistributionStats(counts)
	if sizes.Count() == 0 {
		return info
	}

	info.TotalBytes = sizes.Total()
	info.AvgRecordSize = sizes.Average()
	info.P50RecordSize = sizes.Percentile(50)
	info.P99RecordSize = sizes.Percentile(99)

	bounds, shares := sizes.Distribution()
	for i, share := range shares {
		if share == 0 {
			continue
		}
		b := SizeBucket{Percent: share}
		if i < len(bounds) {
			b.UpTo = bounds[i]
		}
		info.SizeBuckets = append(info.SizeBuckets, b)
	}
	return info
}
