package serializer

import (
	"encoding/json"

	"github.com/ValentinKolb/pKV/rpc/common"
)

// NewJSONSerializer creates a new serializer using json encoding
func NewJSONSerializer() IEnvelopeSerializer {
	return &jsonSerializerImpl{}
}

// jsonSerializerImpl implements the IEnvelopeSerializer interface using json encoding
type jsonSerializerImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IEnvelopeSerializer)
// --------------------------------------------------------------------------

func (j jsonSerializerImpl) Serialize(msg common.Envelope) ([]byte, error) {
	return json.Marshal(msg)
}

func (j jsonSerializerImpl) Deserialize(b []byte, msg *common.Envelope) error {
	return json.Unmarshal(b, msg)
}
