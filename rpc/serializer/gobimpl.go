package serializer

import (
	"bytes"
	"encoding/gob"

	"github.com/ValentinKolb/pKV/rpc/common"
)

// NewGOBSerializer creates a new serializer using Go's binary gob format
func NewGOBSerializer() IEnvelopeSerializer {
	return &gobSerializerImpl{}
}

// gobSerializerImpl implements the IEnvelopeSerializer interface using gob encoding
type gobSerializerImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IEnvelopeSerializer)
// --------------------------------------------------------------------------

func (g gobSerializerImpl) Serialize(msg common.Envelope) ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(msg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g gobSerializerImpl) Deserialize(b []byte, msg *common.Envelope) error {
	buf := bytes.NewBuffer(b)
	dec := gob.NewDecoder(buf)
	return dec.Decode(msg)
}
