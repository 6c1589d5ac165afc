package solar

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
)

const modelFormatVersion = 1

// modelFile is the persisted form of a trained forest.
type modelFile struct {
	Version   int
	Key       string
	Samples   int
	TrainedAt time.Time
	Forest    *Forest
}

// encoder and decoder are safe for concurrent EncodeAll/DecodeAll calls.
var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
)

// EncodeModel serializes a forest as zstd-compressed gob.
func EncodeModel(key string, samples int, f *Forest) ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(modelFile{
		Version:   modelFormatVersion,
		Key:       key,
		Samples:   samples,
		TrainedAt: time.Now().UTC(),
		Forest:    f,
	})
	if err != nil {
		return nil, fmt.Errorf("solar: encoding model %s: %w", key, err)
	}
	return encoder.EncodeAll(buf.Bytes(), make([]byte, 0, buf.Len()/4)), nil
}

// DecodeModel reverses EncodeModel. A file written for a different key or
// format version is rejected.
func DecodeModel(key string, data []byte) (*Forest, error) {
	raw, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("solar: decompressing model %s: %w", key, err)
	}
	var mf modelFile
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&mf); err != nil {
		return nil, fmt.Errorf("solar: decoding model %s: %w", key, err)
	}
	if mf.Version != modelFormatVersion {
		return nil, fmt.Errorf("solar: model %s has format version %d, want %d", key, mf.Version, modelFormatVersion)
	}
	if mf.Key != key {
		return nil, fmt.Errorf("solar: model file is for %s, not %s", mf.Key, key)
	}
	if mf.Forest == nil || len(mf.Forest.Trees) == 0 {
		return nil, fmt.Errorf("solar: model %s is empty", key)
	}
	return mf.Forest, nil
}
