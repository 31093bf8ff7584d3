package durable

import (
	"time"

	"github.com/goccy/go-json"
	"go.trai.ch/zerr"

	"github.com/krisalay/tiered-cache/types"
)

// wireRecord is the on-disk JSON shape of a Record. TTL is in milliseconds.
type wireRecord struct {
	Data          json.RawMessage `json:"data"`
	CreatedAt     time.Time       `json:"createdAt"`
	TTL           int64           `json:"ttl"`
	SchemaVersion string          `json:"schemaVersion"`
}

// EncodeRecord serialises rec to its self-describing JSON form.
func EncodeRecord(rec Record) ([]byte, error) {
	data, err := json.Marshal(wireRecord{
		Data:          rec.Data,
		CreatedAt:     rec.CreatedAt,
		TTL:           ttlMillis(rec.TTL),
		SchemaVersion: rec.SchemaVersion,
	})
	if err != nil {
		return nil, zerr.Wrap(err, "failed to encode cache record")
	}
	return data, nil
}

// ttlMillis rounds a positive ttl up to whole milliseconds, so a sub-ms TTL
// does not come back as zero and read as already expired.
func ttlMillis(ttl time.Duration) int64 {
	if ttl <= 0 {
		return ttl.Milliseconds()
	}
	return int64((ttl + time.Millisecond - 1) / time.Millisecond)
}

// DecodeRecord parses data. Anything that is not a complete record is
// reported as ErrCorruptRecord.
func DecodeRecord(data []byte) (*Record, error) {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, zerr.Wrap(ErrCorruptRecord, err.Error())
	}
	if len(w.Data) == 0 || w.CreatedAt.IsZero() || w.SchemaVersion == "" {
		return nil, zerr.Wrap(ErrCorruptRecord, "missing required field")
	}

	return &Record{
		Data:          w.Data,
		CreatedAt:     w.CreatedAt,
		TTL:           time.Duration(w.TTL) * time.Millisecond,
		SchemaVersion: w.SchemaVersion,
	}, nil
}

// NewRecord converts an entry for storage. Values that are already raw JSON
// (entries promoted from this tier) are stored as is.
func NewRecord(ent *types.CacheEntry) (Record, error) {
	var raw json.RawMessage
	switch v := ent.Data.(type) {
	case json.RawMessage:
		raw = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return Record{}, zerr.Wrap(err, "failed to encode cache value")
		}
		raw = b
	}

	return Record{
		Data:          raw,
		CreatedAt:     ent.CreatedAt,
		TTL:           ent.TTL,
		SchemaVersion: ent.SchemaVersion,
	}, nil
}

// Entry converts a record back into a cache entry whose Data is the raw JSON.
func (r *Record) Entry() *types.CacheEntry {
	return types.NewEntry(r.Data, r.CreatedAt, r.TTL, r.SchemaVersion)
}
