package protocol

import (
	"encoding/binary"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

// json is a drop-in replacement for encoding/json with better performance
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Wire format: [3 bytes big-endian length][1 byte version][1 byte type][payload]
//
// The length field covers everything after itself (version + type + payload),
// so a frame occupies 3+length bytes on the wire and length is always >= 2.

const (
	// Version is the protocol version byte stamped on every outgoing frame.
	// Inbound frames may carry any version; the field is not validated.
	Version = 4

	// HeaderLen is the size of the full frame header (length + version + type).
	HeaderLen = 5

	// MinBodyLen is the smallest legal value of the length field.
	MinBodyLen = 2

	// DefaultMaxFrameLen caps the declared body length. The 24-bit length
	// field would otherwise let a peer demand a 16 MiB buffer per frame.
	DefaultMaxFrameLen = 1 << 20
)

// Message types sent by devices
const (
	MsgTypePing         = 0x01 // periodic status report
	MsgTypeLocation     = 0x0b // location package, plain JSON (legacy G1)
	MsgTypeLogin        = 0x14 // authentication
	MsgTypeStatus       = 0x2d // charging state change
	MsgTypeCallRecord   = 0x34 // call record batch upload
	MsgTypeSms          = 0x39 // SMS report
	MsgTypeChat         = 0x7a // chat message, JSON + binary attachment
	MsgTypeGeneral      = 0x7b // envelope sub-dispatched on "sub_type"
	MsgTypeLocationZlib = 0x7d // location package, zlib-compressed JSON (K1)
)

// Message types sent by the server
const (
	MsgTypeError   = 0x00 // generic unknown-error reply
	MsgTypePingAck = 0x02 // reply to MsgTypePing
	MsgTypeChatAck = 0x03 // reply to MsgTypeChat
)

// ErrFrameTooLarge is returned by ExtractFrame when the declared body length
// exceeds the configured cap. The connection should be torn down: the stream
// cannot be resynchronized past an oversized frame.
type ErrFrameTooLarge struct {
	Declared int
	Max      int
}

func (e *ErrFrameTooLarge) Error() string {
	return fmt.Sprintf("declared frame body of %d bytes exceeds cap of %d", e.Declared, e.Max)
}

// ExtractFrame attempts to cut one complete frame off the front of buf.
//
// It returns (frame, rest, nil) when a full frame is buffered, where rest
// aliases the unconsumed tail of buf. When more bytes are needed it returns
// (nil, buf, nil) with buf untouched. A declared length below MinBodyLen or
// above maxBody is unrecoverable and reported as an error.
//
// Call it in a loop after every read: a single read may complete zero, one,
// or many frames.
func ExtractFrame(buf []byte, maxBody int) (frame, rest []byte, err error) {
	if maxBody <= 0 {
		maxBody = DefaultMaxFrameLen
	}
	if len(buf) < 3 {
		return nil, buf, nil
	}

	// 24-bit big-endian length, zero-padded to 32 bits
	body := int(binary.BigEndian.Uint32([]byte{0, buf[0], buf[1], buf[2]}))
	if body < MinBodyLen {
		return nil, buf, fmt.Errorf("declared frame body of %d bytes below minimum of %d", body, MinBodyLen)
	}
	if body > maxBody {
		return nil, buf, &ErrFrameTooLarge{Declared: body, Max: maxBody}
	}

	total := 3 + body
	if len(buf) < total {
		return nil, buf, nil
	}
	return buf[:total], buf[total:], nil
}

// Type returns the message-type byte of a complete frame.
func Type(frame []byte) byte {
	return frame[4]
}

// BuildFrame serializes payload to JSON and wraps it in a frame header.
// The inverse of ExtractFrame: length = 2 + len(json).
func BuildFrame(msgType byte, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	body := 2 + len(data)
	frame := make([]byte, 0, 3+body)
	frame = append(frame, byte(body>>16), byte(body>>8), byte(body))
	frame = append(frame, Version, msgType)
	frame = append(frame, data...)
	return frame, nil
}

// BuildErrorFrame builds the generic unknown-error reply sent when a handler
// produces no response for a message that expects one.
func BuildErrorFrame() []byte {
	frame, err := BuildFrame(MsgTypeError, StatusResponse{Status: 0, Msg: "Unknown Error."})
	if err != nil {
		// StatusResponse always marshals
		panic(err)
	}
	return frame
}
