package model

// CompressionType names a codec scheme usable for a batch's compressed_data.
type CompressionType string

const (
	CompressionNone   CompressionType = "none"
	CompressionSnappy CompressionType = "snappy"
	CompressionLZ4    CompressionType = "lz4"
	CompressionGzip   CompressionType = "gzip"
)

// UncompressedBatch is the in-memory form the batcher assembles before
// handing it to the codec: identity fields plus the raw event sequence.
type UncompressedBatch struct {
	BatchID   string
	AgentID   string
	Hostname  string
	Timestamp int64
	Events    EventSequence
}

// Batch is the wire envelope exchanged between agent and collector: a
// compressed, checksummed event sequence plus identity fields.
//
// Invariants (enforced by pkg/codec, not by this type):
//   - EventCount == len(events before compression)
//   - Checksum == sha256_hex(CompressedData)
//   - decompressing CompressedData under Compression yields exactly the
//     original event sequence
type Batch struct {
	BatchID        string          `json:"batch_id"`
	AgentID        string          `json:"agent_id"`
	Hostname       string          `json:"hostname"`
	Timestamp      int64           `json:"timestamp"`
	EventCount     int             `json:"event_count"`
	Compression    CompressionType `json:"compression"`
	CompressedData []byte          `json:"compressed_data"`
	Checksum       string          `json:"checksum"`
}

// IngestStatus is the collector's verdict on a single ingested Batch.
type IngestStatus string

const (
	IngestStatusSuccess        IngestStatus = "success"
	IngestStatusPartialSuccess IngestStatus = "partial_success"
	IngestStatusFailed         IngestStatus = "failed"
	IngestStatusRejected       IngestStatus = "rejected"
)

// UnknownBatchID is used when a frame could not be parsed far enough to
// recover the batch_id it claimed.
const UnknownBatchID = "unknown"

// IngestResponse is the collector's reply frame for a received Batch.
type IngestResponse struct {
	BatchID      string       `json:"batch_id"`
	Status       IngestStatus `json:"status"`
	ErrorMessage string       `json:"error_message,omitempty"`
	ReceivedAt   int64        `json:"received_at"`
}
