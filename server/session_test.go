package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchgate/watchgate/protocol"
	"github.com/watchgate/watchgate/server/registry"
)

// testSession runs a Session over net.Pipe and returns the peer end.
func testSession(t *testing.T) (net.Conn, *registry.Registry) {
	t.Helper()

	h, _ := newTestHandlers(t)
	d := NewDispatcher(h, zerolog.Nop())
	reg := registry.New(zerolog.Nop())

	client, server := net.Pipe()
	sess := NewSession(server, d, reg, protocol.DefaultMaxFrameLen, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sess.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		client.Close()
		<-done
	})

	return client, reg
}

func writeFrame(t *testing.T, conn net.Conn, msgType byte, payload interface{}) {
	t.Helper()
	frame, err := protocol.BuildFrame(msgType, payload)
	require.NoError(t, err)
	require.NoError(t, conn.SetWriteDeadline(time.Now().Add(2*time.Second)))
	_, err = conn.Write(frame)
	require.NoError(t, err)
}

func readSessionFrame(t *testing.T, conn net.Conn) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var buf []byte
	chunk := make([]byte, 4096)
	for {
		frame, rest, err := protocol.ExtractFrame(buf, protocol.DefaultMaxFrameLen)
		require.NoError(t, err)
		buf = rest
		if frame != nil {
			return frame
		}
		n, err := conn.Read(chunk)
		require.NoError(t, err)
		buf = append(buf, chunk[:n]...)
	}
}

func loginOverSession(t *testing.T, conn net.Conn) {
	t.Helper()
	writeFrame(t, conn, protocol.MsgTypeLogin, protocol.LoginRequest{
		UDID: testUDID, IMEI: testIMEI, MAC: testMAC,
	})
	resp := readSessionFrame(t, conn)
	require.Equal(t, byte(protocol.MsgTypeLogin), protocol.Type(resp))
}

func TestSession_LoginRegistersAndReplies(t *testing.T) {
	conn, reg := testSession(t)

	loginOverSession(t, conn)
	assert.Equal(t, 1, reg.Count())
	_, ok := reg.Get(testUDID)
	assert.True(t, ok)
}

func TestSession_PingBeforeLoginGetsErrorFrame(t *testing.T) {
	conn, _ := testSession(t)

	writeFrame(t, conn, protocol.MsgTypePing, protocol.PingRequest{Power: 1})
	resp := readSessionFrame(t, conn)
	assert.Equal(t, byte(protocol.MsgTypeError), protocol.Type(resp))
}

func TestSession_UnknownTypeIsSilentlySkipped(t *testing.T) {
	conn, _ := testSession(t)
	loginOverSession(t, conn)

	// An unknown type produces nothing; the next message still works,
	// proving the connection survived.
	writeFrame(t, conn, 0x77, map[string]int{"x": 1})
	writeFrame(t, conn, protocol.MsgTypePing, protocol.PingRequest{Power: 5})

	resp := readSessionFrame(t, conn)
	assert.Equal(t, byte(protocol.MsgTypePingAck), protocol.Type(resp))
}

func TestSession_DisconnectUnbinds(t *testing.T) {
	conn, reg := testSession(t)
	loginOverSession(t, conn)
	require.Equal(t, 1, reg.Count())

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return reg.Count() == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestSession_OversizedFrameFailsConnection(t *testing.T) {
	h, _ := newTestHandlers(t)
	d := NewDispatcher(h, zerolog.Nop())
	reg := registry.New(zerolog.Nop())

	client, server := net.Pipe()
	defer client.Close()

	sess := NewSession(server, d, reg, 64, zerolog.Nop())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sess.Run(context.Background())
	}()

	// Header declaring a 1 MiB body against a 64-byte cap.
	require.NoError(t, client.SetWriteDeadline(time.Now().Add(2*time.Second)))
	_, err := client.Write([]byte{0x10, 0x00, 0x00, protocol.Version, protocol.MsgTypePing})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not drop the connection on an oversized frame")
	}
}

func TestSession_SplitFrameAcrossWrites(t *testing.T) {
	conn, reg := testSession(t)

	frame, err := protocol.BuildFrame(protocol.MsgTypeLogin, protocol.LoginRequest{
		UDID: testUDID, IMEI: testIMEI, MAC: testMAC,
	})
	require.NoError(t, err)

	require.NoError(t, conn.SetWriteDeadline(time.Now().Add(2*time.Second)))
	mid := len(frame) / 2
	_, err = conn.Write(frame[:mid])
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	_, err = conn.Write(frame[mid:])
	require.NoError(t, err)

	resp := readSessionFrame(t, conn)
	assert.Equal(t, byte(protocol.MsgTypeLogin), protocol.Type(resp))
	assert.Equal(t, 1, reg.Count())
}
