package serializer

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/ValentinKolb/pKV/lib/entry"
	"github.com/ValentinKolb/pKV/rpc/common"
)

// benchmarkEnvelopes returns a set of envelopes for targeted benchmarking
func benchmarkEnvelopes() map[string]common.Envelope {
	withValue := func(size int) common.Envelope {
		value, _ := json.Marshal(strings.Repeat("x", size))
		return *common.NewPut("", &entry.Entry{
			Key:       "key",
			Author:    "23Yp1dbb6ZPBi6Ha8ZW2vYV33iRkkRfy3YXjoL3S5UP6h",
			Nonce:     1234,
			Timestamp: 1628918110150,
			Hash:      "000f1e6b1bd3bbfc1d41a7c4d0d8db7a4e3a2ec68b1c43de32c0ae64bd4e4b2c",
			Signature: "KXqLBuBUvRxB2cdr7nb6B5T7SH3Y3wBhZ2D1MaCTgxRqzDcq6cGU4v2oGWZN2MPdYRvEEHs2ycmR3jWtvJvfmH3Ty",
			Value:     value,
		})
	}

	visited := withValue(64)
	return map[string]common.Envelope{
		"Get":         *common.NewGetRequest("users.alice"),
		"SmallPut":    withValue(8),
		"MediumPut":   withValue(256),
		"LargePut":    withValue(1024),
		"VeryLarge":   withValue(1024 * 16),
		"VisitedPut":  *visited.Visit("a", "b", "c", "d"),
		"QueryAck":    *common.NewQueryAck(common.NewID(), "origin", []string{"a.b", "a.c", "a.d"}),
		"FunctionRet": *common.NewFunctionReturn(common.NewID(), "origin", json.RawMessage(`{"sum":3}`), common.StatusOK, nil),
	}
}

// BenchmarkSerialize benchmarks serialization for all implementations with various envelopes
func BenchmarkSerialize(b *testing.B) {
	envelopes := benchmarkEnvelopes()

	for name, factory := range testSerializers {
		for msgName, msg := range envelopes {
			b.Run(name+"_"+msgName, func(b *testing.B) {
				serializer := factory()
				b.ResetTimer()

				for i := 0; i < b.N; i++ {
					_, err := serializer.Serialize(msg)
					if err != nil {
						b.Fatalf("Failed to serialize: %v", err)
					}
				}
			})
		}
	}
}

// BenchmarkDeserialize benchmarks deserialization for all implementations with various envelopes
func BenchmarkDeserialize(b *testing.B) {
	envelopes := benchmarkEnvelopes()
	serializedData := make(map[string]map[string][]byte)

	// Pre-serialize all envelopes with all serializers
	for name, factory := range testSerializers {
		serializer := factory()
		serializedData[name] = make(map[string][]byte)

		for msgName, msg := range envelopes {
			data, err := serializer.Serialize(msg)
			if err != nil {
				b.Fatalf("Failed to serialize %s with %s: %v", msgName, name, err)
			}
			serializedData[name][msgName] = data
		}
	}

	for name, factory := range testSerializers {
		for msgName := range envelopes {
			b.Run(name+"_"+msgName, func(b *testing.B) {
				serializer := factory()
				data := serializedData[name][msgName]
				b.ResetTimer()

				for i := 0; i < b.N; i++ {
					var msg common.Envelope
					err := serializer.Deserialize(data, &msg)
					if err != nil {
						b.Fatalf("Failed to deserialize: %v", err)
					}
				}
			})
		}
	}
}

// BenchmarkSize measures and reports the serialized size for each envelope
func BenchmarkSize(b *testing.B) {
	envelopes := benchmarkEnvelopes()

	for name, factory := range testSerializers {
		serializer := factory()

		for msgName, msg := range envelopes {
			b.Run(name+"_"+msgName, func(b *testing.B) {
				data, err := serializer.Serialize(msg)
				if err != nil {
					b.Fatalf("Failed to serialize: %v", err)
				}

				// Report the size as a custom metric
				b.ReportMetric(float64(len(data)), "bytes")

				for i := 0; i < b.N; i++ {
					_ = data
				}
			})
		}
	}
}
