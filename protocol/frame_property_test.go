package protocol

import (
	"testing"

	"pgregory.net/rapid"
)

// TestFrameRoundTrip_Property verifies that any JSON-marshalable payload
// survives BuildFrame followed by ExtractFrame regardless of how the bytes
// arrive.
func TestFrameRoundTrip_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		msgType := rapid.Byte().Draw(t, "msgType")
		text := rapid.String().Draw(t, "text")
		status := rapid.IntRange(0, 1).Draw(t, "status")

		frame, err := BuildFrame(msgType, StatusResponse{Status: status, Msg: text})
		if err != nil {
			t.Fatalf("BuildFrame failed: %v", err)
		}

		// Deliver in random-sized chunks.
		var buf []byte
		var got []byte
		remaining := frame
		for len(remaining) > 0 {
			n := rapid.IntRange(1, len(remaining)).Draw(t, "chunk")
			buf = append(buf, remaining[:n]...)
			remaining = remaining[n:]

			extracted, rest, err := ExtractFrame(buf, DefaultMaxFrameLen)
			if err != nil {
				t.Fatalf("ExtractFrame failed: %v", err)
			}
			buf = rest
			if extracted != nil {
				got = extracted
			}
		}

		if got == nil {
			t.Fatal("no frame extracted after full delivery")
		}
		if Type(got) != msgType {
			t.Fatalf("type mismatch: sent 0x%02x, got 0x%02x", msgType, Type(got))
		}

		var decoded StatusResponse
		if err := json.Unmarshal(got[HeaderLen:], &decoded); err != nil {
			t.Fatalf("payload decode failed: %v", err)
		}
		if decoded.Status != status || decoded.Msg != text {
			t.Fatalf("payload mismatch: got %+v", decoded)
		}
	})
}

// TestExtractFrame_NeverPanics_Property feeds arbitrary bytes through
// ExtractFrame and checks it either yields a frame, asks for more data, or
// errors, without panicking or consuming bytes on error.
func TestExtractFrame_NeverPanics_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		buf := rapid.SliceOfN(rapid.Byte(), 0, 64).Draw(t, "buf")
		maxBody := rapid.IntRange(0, 1<<21).Draw(t, "maxBody")

		frame, rest, err := ExtractFrame(buf, maxBody)
		if err != nil {
			if len(rest) != len(buf) {
				t.Fatal("error must leave the buffer untouched")
			}
			return
		}
		if frame == nil && len(rest) != len(buf) {
			t.Fatal("needs-more-bytes must leave the buffer untouched")
		}
		if frame != nil && len(frame)+len(rest) != len(buf) {
			t.Fatal("frame and rest must partition the buffer")
		}
	})
}
