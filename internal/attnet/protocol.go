package attnet

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// maxMessageSize bounds a single frame. Attestation payloads are
	// tiny; 1 MB leaves room for future batching.
	maxMessageSize = 1 << 20

	// lengthPrefixSize is the size of the length prefix in bytes.
	lengthPrefixSize = 4
)

// writeMessage writes a length-prefixed frame.
// Format: [4 bytes big-endian length] [payload]
func writeMessage(w io.Writer, data []byte) error {
	if len(data) > maxMessageSize {
		return fmt.Errorf("message too large: %d > %d", len(data), maxMessageSize)
	}

	var lengthBuf [lengthPrefixSize]byte
	binary.BigEndian.PutUint32(lengthBuf[:], uint32(len(data)))

	if _, err := w.Write(lengthBuf[:]); err != nil {
		return fmt.Errorf("write length: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}

	return nil
}

// readMessage reads a length-prefixed frame.
func readMessage(r io.Reader) ([]byte, error) {
	var lengthBuf [lengthPrefixSize]byte

	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		return nil, fmt.Errorf("read length: %w", err)
	}

	length := binary.BigEndian.Uint32(lengthBuf[:])

	if length > maxMessageSize {
		return nil, fmt.Errorf("message too large: %d > %d", length, maxMessageSize)
	}

	data := make([]byte, length)

	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}

	return data, nil
}

// Response status bytes. A response frame is [status byte] [body]:
// body is the payload on success, the error text on failure.
const (
	statusOK  = 0x00
	statusErr = 0x01
)

// encodeResponse frames a handler result.
func encodeResponse(payload []byte, err error) []byte {
	if err != nil {
		return append([]byte{statusErr}, []byte(err.Error())...)
	}

	return append([]byte{statusOK}, payload...)
}

// decodeResponse unpacks a response frame.
func decodeResponse(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty response")
	}

	if data[0] == statusErr {
		return nil, fmt.Errorf("remote: %s", string(data[1:]))
	}

	return data[1:], nil
}
