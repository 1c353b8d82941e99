package serializer

import (
	"fmt"

	"github.com/ValentinKolb/pKV/rpc/common"
	"github.com/klauspost/compress/zstd"
)

// maxDecodedSize bounds the memory a single decompressed envelope may use
const maxDecodedSize = 64 << 20

// NewZstdSerializer wraps inner and compresses its output with zstd
func NewZstdSerializer(inner IEnvelopeSerializer) (IEnvelopeSerializer, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0), zstd.WithDecoderMaxMemory(maxDecodedSize))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &zstdSerializerImpl{inner: inner, encoder: encoder, decoder: decoder}, nil
}

// zstdSerializerImpl implements the IEnvelopeSerializer interface by compressing
// the output of another serializer. EncodeAll and DecodeAll are safe for
// concurrent use, so one encoder and decoder are shared.
type zstdSerializerImpl struct {
	inner   IEnvelopeSerializer
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IEnvelopeSerializer)
// --------------------------------------------------------------------------

func (z *zstdSerializerImpl) Serialize(msg common.Envelope) ([]byte, error) {
	raw, err := z.inner.Serialize(msg)
	if err != nil {
		return nil, err
	}
	return z.encoder.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
}

func (z *zstdSerializerImpl) Deserialize(b []byte, msg *common.Envelope) error {
	raw, err := z.decoder.DecodeAll(b, nil)
	if err != nil {
		return fmt.Errorf("failed to decompress envelope: %w", err)
	}
	return z.inner.Deserialize(raw, msg)
}
