package protocol

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
)

// ParsedMessage is the outcome of a payload parser.
//
// Exactly one of the following holds: JSON is set (payload decoded cleanly,
// Attachment optionally set for chat frames), Raw is set (payload was not
// valid JSON and is passed through for the handler to judge), or both are
// nil (the parser failed outright).
type ParsedMessage struct {
	// JSON holds the payload's JSON bytes after any decompression or
	// sub-framing. Nil when the payload did not decode as JSON.
	JSON []byte

	// Raw holds the original payload bytes when JSON decoding failed.
	Raw []byte

	// Attachment holds trailing binary data (voice clips on chat frames).
	Attachment []byte
}

// Failed reports whether the parser could not produce a JSON payload.
func (m ParsedMessage) Failed() bool {
	return m.JSON == nil
}

// ParseFunc turns a complete frame into a ParsedMessage.
//
// Parsers receive the full frame, header included, and strip the 5-byte
// prefix themselves. Historical wire-format quirk: the chat sub-format
// counts its JSON length from the start of its own payload, so handing
// parsers pre-stripped payloads would shift every offset below.
type ParseFunc func(frame []byte) (ParsedMessage, error)

// ParseJSON interprets the frame payload as UTF-8 JSON.
// A payload that fails to decode is passed through in Raw.
func ParseJSON(frame []byte) (ParsedMessage, error) {
	if len(frame) < HeaderLen {
		return ParsedMessage{}, fmt.Errorf("frame of %d bytes has no payload", len(frame))
	}
	payload := frame[HeaderLen:]
	if !json.Valid(payload) {
		return ParsedMessage{Raw: payload}, fmt.Errorf("payload is not valid JSON")
	}
	return ParsedMessage{JSON: payload}, nil
}

// ParseZlibJSON decompresses the frame payload with zlib, then decodes it as
// JSON. On decompression failure the compressed bytes are passed through in
// Raw; on JSON failure the decompressed bytes are.
func ParseZlibJSON(frame []byte) (ParsedMessage, error) {
	if len(frame) < HeaderLen+2 {
		return ParsedMessage{}, fmt.Errorf("frame of %d bytes has no compressed payload", len(frame))
	}
	payload := frame[HeaderLen:]

	zr, err := zlib.NewReader(bytes.NewReader(payload))
	if err != nil {
		return ParsedMessage{Raw: payload}, fmt.Errorf("zlib init: %w", err)
	}
	defer zr.Close()

	buf := GetBuffer()
	defer PutBuffer(buf)
	if _, err := io.Copy(buf, zr); err != nil {
		return ParsedMessage{Raw: payload}, fmt.Errorf("zlib decompress: %w", err)
	}

	inflated := append([]byte(nil), buf.Bytes()...)
	if !json.Valid(inflated) {
		return ParsedMessage{Raw: inflated}, fmt.Errorf("decompressed payload is not valid JSON")
	}
	return ParsedMessage{JSON: inflated}, nil
}

// ParseChat decodes the chat sub-format:
//
//	[2-byte big-endian json length][json bytes][binary attachment]
//
// Truncated sub-frames and invalid JSON fail hard (no Raw fallback): a chat
// frame without its JSON head carries nothing a handler could act on.
func ParseChat(frame []byte) (ParsedMessage, error) {
	if len(frame) < HeaderLen {
		return ParsedMessage{}, fmt.Errorf("chat frame of %d bytes too short", len(frame))
	}
	payload := frame[HeaderLen:]
	if len(payload) < 2 {
		return ParsedMessage{}, fmt.Errorf("chat payload of %d bytes too short for JSON length", len(payload))
	}

	jsonLen := int(binary.BigEndian.Uint16(payload[:2]))
	jsonEnd := 2 + jsonLen
	if len(payload) < jsonEnd {
		return ParsedMessage{}, fmt.Errorf("chat payload declares %d JSON bytes but carries %d", jsonLen, len(payload)-2)
	}

	jsonBytes := payload[2:jsonEnd]
	if !json.Valid(jsonBytes) {
		return ParsedMessage{}, fmt.Errorf("chat JSON head is not valid JSON")
	}

	msg := ParsedMessage{JSON: jsonBytes}
	if len(payload) > jsonEnd {
		msg.Attachment = payload[jsonEnd:]
	}
	return msg, nil
}

// Decode unmarshals a ParsedMessage's JSON payload into v.
func (m ParsedMessage) Decode(v interface{}) error {
	if m.JSON == nil {
		return fmt.Errorf("no JSON payload to decode")
	}
	if err := json.Unmarshal(m.JSON, v); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	return nil
}
