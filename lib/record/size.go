package record

// SizeEstimate returns an estimate of the memory footprint of the record in bytes.
// The estimate counts field names, string payloads and a fixed 8 bytes for every
// scalar, it is meant for statistics only.
func (r Record) SizeEstimate() int {
	size := 0
	for _, f := range r.fields {
		size += len(f.Name) + valueSize(f.Value)
	}
	return size
}

func valueSize(v any) int {
	switch t := v.(type) {
	case nil:
		return 1
	case bool:
		return 1
	case string:
		return len(t)
	case Record:
		return t.SizeEstimate()
	case []any:
		size := 0
		for i := range t {
			size += valueSize(t[i])
		}
		return size
	default:
		return 8
	}
}
