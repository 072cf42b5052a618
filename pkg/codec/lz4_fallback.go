//go:build !lz4lib

package codec

import "github.com/flowmesh/telemetry/pkg/model"

// compressLZ4 is unavailable without the lz4lib build tag. Compress()
// catches this error and degrades to snappy, recording the actual scheme
// used on the returned batch, per the conditional-compression design note.
func compressLZ4(data []byte) ([]byte, error) {
	return nil, unsupportedSchemeError{scheme: model.CompressionLZ4}
}

func decompressLZ4(data []byte) ([]byte, error) {
	return nil, unsupportedSchemeError{scheme: model.CompressionLZ4}
}
