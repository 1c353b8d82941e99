package serializer

import (
	"fmt"

	"github.com/ValentinKolb/pKV/rpc/common"
)

// IEnvelopeSerializer is the interface for all envelope serializers
type IEnvelopeSerializer interface {
	// Serialize serializes an Envelope into a byte array
	// It returns the serialized byte array and an error if any
	Serialize(msg common.Envelope) ([]byte, error)
	// Deserialize deserializes a byte array into an Envelope
	// It takes a byte array and a pointer to an Envelope as parameters
	// It returns an error if any
	Deserialize(b []byte, msg *common.Envelope) error
}

// Names lists the serializers accepted by FromName.
var Names = []string{"json", "gob", "json+zstd", "gob+zstd"}

// FromName creates the serializer registered under name.
// All nodes of a network must use the same serializer.
func FromName(name string) (IEnvelopeSerializer, error) {
	switch name {
	case "", "json":
		return NewJSONSerializer(), nil
	case "gob":
		return NewGOBSerializer(), nil
	case "json+zstd":
		return NewZstdSerializer(NewJSONSerializer())
	case "gob+zstd":
		return NewZstdSerializer(NewGOBSerializer())
	default:
		return nil, fmt.Errorf("invalid serializer %s, must be one of %v", name, Names)
	}
}
