package base

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

// MaxFrameSize bounds the payload of a single frame
const MaxFrameSize = 16 << 20

// Frame kinds
const (
	FrameHello uint8 = iota + 1
	FrameData
)

// writeFrame writes a frame to the connection with the format:
// - 1 byte: frame kind
// - 4 bytes: data length (uint32, big endian)
// - N bytes: data payload
func writeFrame(conn net.Conn, kind uint8, data []byte) error {
	if len(data) > MaxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds the limit of %d", len(data), MaxFrameSize)
	}
	header := make([]byte, 5)
	header[0] = kind
	binary.BigEndian.PutUint32(header[1:5], uint32(len(data)))

	b := net.Buffers{header, data}
	_, err := b.WriteTo(conn)
	return err
}

// readFrame reads a frame from the connection
func readFrame(conn net.Conn) (uint8, []byte, error) {
	var header [5]byte
	if _, err := io.ReadFull(conn, header[:]); err != nil {
		return 0, nil, err
	}

	kind := header[0]
	contentLength := binary.BigEndian.Uint32(header[1:5])
	if contentLength > MaxFrameSize {
		return 0, nil, fmt.Errorf("frame of %d bytes exceeds the limit of %d", contentLength, MaxFrameSize)
	}
	if contentLength == 0 {
		return kind, []byte{}, nil
	}

	data := make([]byte, contentLength)
	if _, err := io.ReadFull(conn, data); err != nil {
		return 0, nil, err
	}
	return kind, data, nil
}
