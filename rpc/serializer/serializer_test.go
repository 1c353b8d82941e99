package serializer

import (
	"encoding/json"
	"testing"

	"github.com/ValentinKolb/pKV/lib/crdt"
	"github.com/ValentinKolb/pKV/lib/entry"
	"github.com/ValentinKolb/pKV/rpc/common"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IEnvelopeSerializer{
	"JSON": NewJSONSerializer,
	"GOB":  NewGOBSerializer,
	"JSON+ZSTD": func() IEnvelopeSerializer {
		s, err := NewZstdSerializer(NewJSONSerializer())
		if err != nil {
			panic(err)
		}
		return s
	},
	"GOB+ZSTD": func() IEnvelopeSerializer {
		s, err := NewZstdSerializer(NewGOBSerializer())
		if err != nil {
			panic(err)
		}
		return s
	},
}

// testEnvelopes creates a set of test envelopes with different fields filled
func testEnvelopes() []common.Envelope {
	sample := &entry.Entry{
		Key:       "users.alice",
		Author:    "author",
		Nonce:     42,
		Timestamp: 1628918110150,
		Hash:      "000abc",
		Signature: "sig",
		Value:     json.RawMessage(`{"name":"alice"}`),
	}
	counter := *sample
	counter.CrdtType = crdt.TypeCounter
	counter.Value = json.RawMessage(`[{"op":"ADD","author":"author","value":8,"seq":1}]`)

	peer := common.Peer{Address: "addr", Host: "127.0.0.1", Port: 7070, Topic: "pkv", Timestamp: 1, Signature: "s", Server: true}

	return []common.Envelope{
		// get request
		*common.NewGetRequest("users.alice"),

		// put with visited set
		*common.NewPut("", sample).Visit("a", "b"),

		// crdt put
		*common.NewCrdtPut("", &counter),

		// pong with known peers
		*common.NewPong(common.NewID(), peer, []common.Peer{peer}),

		// query ack
		*common.NewQueryAck(common.NewID(), "origin", []string{"a", "b"}),

		// function call and return
		*common.NewFunctionRequest("sum", json.RawMessage(`[1,2]`)),
		*common.NewFunctionReturn(common.NewID(), "origin", json.RawMessage(`3`), common.StatusOK, nil),
	}
}

// canonical compares envelopes independent of nil/empty representation differences
func canonical(t *testing.T, msg common.Envelope) string {
	t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}
	return string(data)
}

// TestSerializerRoundTrip tests that envelopes can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	envelopes := testEnvelopes()

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, msg := range envelopes {
				// Serialize
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize envelope %d: %v", i, err)
					continue
				}

				// Deserialize
				var result common.Envelope
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize envelope %d: %v", i, err)
					continue
				}

				// Compare
				if canonical(t, msg) != canonical(t, result) {
					t.Errorf("Envelope %d doesn't match after round trip:\nOriginal: %s\nResult: %s",
						i, canonical(t, msg), canonical(t, result))
				}
			}
		})
	}
}

// TestMessageTypes tests each message type with each serializer
func TestMessageTypes(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for msgType := common.MsgTGet; msgType <= common.MsgTFunctionReturn; msgType++ {
				msg := common.Envelope{MsgType: msgType, ID: common.NewID()}

				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message type %s: %v", msgType.String(), err)
					continue
				}

				var result common.Envelope
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message type %s: %v", msgType.String(), err)
					continue
				}

				if result.MsgType != msgType || result.ID != msg.ID {
					t.Errorf("Envelope doesn't match after round trip: Expected %s/%s, got %s/%s",
						msgType.String(), msg.ID, result.MsgType.String(), result.ID)
				}
			}
		})
	}
}

// TestInvalidData tests that corrupt input is rejected
func TestInvalidData(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			var msg common.Envelope
			if err := factory().Deserialize([]byte{0xde, 0xad, 0xbe, 0xef}, &msg); err == nil {
				t.Errorf("Expected error but got none")
			}
		})
	}
}

// TestCompression tests that the zstd wrapper shrinks repetitive payloads
func TestCompression(t *testing.T) {
	plain := NewJSONSerializer()
	compressed := testSerializers["JSON+ZSTD"]()

	keys := make([]string, 500)
	for i := range keys {
		keys[i] = "users.alice.todos.item"
	}
	msg := *common.NewQueryAck(common.NewID(), "origin", keys)

	a, err := plain.Serialize(msg)
	if err != nil {
		t.Fatal(err)
	}
	b, err := compressed.Serialize(msg)
	if err != nil {
		t.Fatal(err)
	}
	if len(b) >= len(a)/4 {
		t.Errorf("expected compressed size well below %d, got %d", len(a), len(b))
	}
}

// TestFromName tests serializer selection by configuration name
func TestFromName(t *testing.T) {
	for _, name := range Names {
		if _, err := FromName(name); err != nil {
			t.Errorf("FromName(%q) failed: %v", name, err)
		}
	}
	if _, err := FromName("binary"); err == nil {
		t.Errorf("expected an error for an unknown serializer")
	}
}
