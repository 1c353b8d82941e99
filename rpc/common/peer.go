package common

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/minio/sha256-simd"
)

// Peer is the signed record a node announces in ping and pong envelopes.
type Peer struct {
	Address   string `json:"address"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Topic     string `json:"topic"`
	Timestamp int64  `json:"timestamp"`
	Signature string `json:"signature"`
	Server    bool   `json:"server"`
}

// Digest is the hex hash the peer signature is computed over.
// It covers every field except the signature.
func (p Peer) Digest() string {
	var sb strings.Builder
	sb.WriteString(p.Address)
	sb.WriteByte('|')
	sb.WriteString(p.Host)
	sb.WriteByte('|')
	sb.WriteString(strconv.Itoa(p.Port))
	sb.WriteByte('|')
	sb.WriteString(p.Topic)
	sb.WriteByte('|')
	sb.WriteString(strconv.FormatInt(p.Timestamp, 10))
	sb.WriteByte('|')
	sb.WriteString(strconv.FormatBool(p.Server))
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// Endpoint returns host:port, or an empty string if the peer did not announce a port.
func (p Peer) Endpoint() string {
	if p.Port == 0 {
		return p.Host
	}
	return p.Host + ":" + strconv.Itoa(p.Port)
}

