// Package codec implements serialize -> compress -> checksum, and the
// inverse. Functions here are pure and stateless; all state (which scheme
// was actually used) is recorded back onto the returned Batch.
package codec

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/golang/snappy"

	"github.com/flowmesh/telemetry/pkg/model"
)

// MaxDecompressedBytes bounds decompression output to defend against
// decompression bombs, per the oversize defense in the error handling
// design. A batch whose decompressed payload would exceed this is
// rejected with ErrorKindMalformedPayload before full decode completes.
const MaxDecompressedBytes = 256 << 20 // 256 MiB

// Compress serializes the batch's events to canonical JSON, applies the
// requested compression scheme, computes the checksum over the compressed
// bytes, and returns the wire Batch. If scheme is unavailable at runtime
// (lz4 without the lz4lib build tag), it degrades to snappy, logs a
// warning, and records the scheme actually used.
func Compress(logger *slog.Logger, b model.UncompressedBatch, scheme model.CompressionType) (model.Batch, error) {
	if logger == nil {
		logger = slog.Default()
	}

	serialized, err := json.Marshal(b.Events)
	if err != nil {
		return model.Batch{}, fmt.Errorf("codec: serializing events: %w", err)
	}

	actualScheme := scheme
	compressed, err := compressBytes(serialized, scheme)
	if err != nil {
		if _, unsupported := err.(unsupportedSchemeError); unsupported {
			logger.Warn("compression scheme unavailable, falling back to snappy",
				"requested", scheme, "error", err)
			actualScheme = model.CompressionSnappy
			compressed, err = compressBytes(serialized, actualScheme)
		}
		if err != nil {
			return model.Batch{}, fmt.Errorf("codec: compressing batch: %w", err)
		}
	}

	sum := sha256.Sum256(compressed)

	return model.Batch{
		BatchID:        b.BatchID,
		AgentID:        b.AgentID,
		Hostname:       b.Hostname,
		Timestamp:      b.Timestamp,
		EventCount:     len(b.Events),
		Compression:    actualScheme,
		CompressedData: compressed,
		Checksum:       hex.EncodeToString(sum[:]),
	}, nil
}

// Decompress verifies the batch's checksum, reverses its declared
// compression scheme, and deserializes the resulting JSON into an event
// sequence. Checksum mismatch and malformed-payload errors are returned as
// *model.Error so callers can map them to an IngestStatus directly.
func Decompress(b model.Batch) (model.EventSequence, error) {
	sum := sha256.Sum256(b.CompressedData)
	if hex.EncodeToString(sum[:]) != b.Checksum {
		return nil, model.NewError(model.ErrorKindChecksumMismatch,
			"computed checksum does not match batch checksum", nil)
	}

	decompressed, err := decompressBytes(b.CompressedData, b.Compression)
	if err != nil {
		if _, unsupported := err.(unsupportedSchemeError); unsupported {
			return nil, model.NewError(model.ErrorKindCompressionUnavailable, err.Error(), err)
		}
		return nil, model.NewError(model.ErrorKindMalformedPayload, "decompressing batch", err)
	}

	var events model.EventSequence
	if err := json.Unmarshal(decompressed, &events); err != nil {
		return nil, model.NewError(model.ErrorKindMalformedPayload, "deserializing events", err)
	}
	if len(events) != b.EventCount {
		return nil, model.NewError(model.ErrorKindMalformedPayload,
			fmt.Sprintf("event_count mismatch: header says %d, decoded %d", b.EventCount, len(events)), nil)
	}

	return events, nil
}

// unsupportedSchemeError signals that a requested scheme cannot be used at
// runtime (currently only lz4 without the lz4lib build tag).
type unsupportedSchemeError struct{ scheme model.CompressionType }

func (e unsupportedSchemeError) Error() string {
	return fmt.Sprintf("codec: compression scheme %q not compiled in", e.scheme)
}

func compressBytes(data []byte, scheme model.CompressionType) ([]byte, error) {
	switch scheme {
	case model.CompressionNone, "":
		return data, nil
	case model.CompressionSnappy:
		return snappy.Encode(nil, data), nil
	case model.CompressionGzip:
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		if _, err := gz.Write(data); err != nil {
			return nil, fmt.Errorf("gzip write: %w", err)
		}
		if err := gz.Close(); err != nil {
			return nil, fmt.Errorf("gzip close: %w", err)
		}
		return buf.Bytes(), nil
	case model.CompressionLZ4:
		return compressLZ4(data)
	default:
		return nil, fmt.Errorf("codec: unknown compression scheme %q", scheme)
	}
}

func decompressBytes(data []byte, scheme model.CompressionType) ([]byte, error) {
	switch scheme {
	case model.CompressionNone, "":
		if len(data) > MaxDecompressedBytes {
			return nil, fmt.Errorf("payload exceeds %d byte ceiling", MaxDecompressedBytes)
		}
		return data, nil
	case model.CompressionSnappy:
		n, err := snappy.DecodedLen(data)
		if err != nil {
			return nil, fmt.Errorf("snappy decoded length: %w", err)
		}
		if n > MaxDecompressedBytes {
			return nil, fmt.Errorf("decompressed snappy payload (%d bytes) exceeds ceiling", n)
		}
		return snappy.Decode(nil, data)
	case model.CompressionGzip:
		gz, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer gz.Close()
		limited := io.LimitReader(gz, MaxDecompressedBytes+1)
		out, err := io.ReadAll(limited)
		if err != nil {
			return nil, fmt.Errorf("gzip read: %w", err)
		}
		if len(out) > MaxDecompressedBytes {
			return nil, fmt.Errorf("decompressed gzip payload exceeds %d byte ceiling", MaxDecompressedBytes)
		}
		return out, nil
	case model.CompressionLZ4:
		return decompressLZ4(data)
	default:
		return nil, fmt.Errorf("codec: unknown compression scheme %q", scheme)
	}
}
