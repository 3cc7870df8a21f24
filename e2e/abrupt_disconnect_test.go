package e2e

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchgate/watchgate/cmd/generate/certs"
	"github.com/watchgate/watchgate/config"
	"github.com/watchgate/watchgate/legacycrypt"
	"github.com/watchgate/watchgate/protocol"
	"github.com/watchgate/watchgate/server"
	"github.com/watchgate/watchgate/server/registry"
	"github.com/watchgate/watchgate/storage"
)

// TestAbruptDisconnect verifies that a watch killed mid-session is unbound
// from the registry and that the listener keeps serving new connections.
func TestAbruptDisconnect(t *testing.T) {
	cfg, reg := startServer(t)

	// First watch logs in, then its transport dies without a goodbye.
	conn1 := dialAndLogin(t, cfg, "e2e-test-device-0001")
	require.Eventually(t, func() bool { return reg.Count() == 1 },
		5*time.Second, 20*time.Millisecond, "session should be registered after login")

	require.NoError(t, conn1.Close())
	require.Eventually(t, func() bool { return reg.Count() == 0 },
		5*time.Second, 20*time.Millisecond, "session should be unbound after disconnect")

	// The listener is unaffected: a second watch can still log in.
	conn2 := dialAndLogin(t, cfg, "e2e-test-device-0002")
	defer conn2.Close()
	require.Eventually(t, func() bool { return reg.Count() == 1 },
		5*time.Second, 20*time.Millisecond, "new sessions should register after a crash")
}

// TestReloginSupersedes verifies that a second login with the same udid takes
// over the registry slot without killing the first connection outright.
func TestReloginSupersedes(t *testing.T) {
	cfg, reg := startServer(t)

	conn1 := dialAndLogin(t, cfg, "e2e-test-device-0003")
	defer conn1.Close()
	require.Eventually(t, func() bool { return reg.Count() == 1 },
		5*time.Second, 20*time.Millisecond)

	conn2 := dialAndLogin(t, cfg, "e2e-test-device-0003")
	defer conn2.Close()

	// Still exactly one registered session for the udid.
	assert.Equal(t, 1, reg.Count())

	// The superseded connection still answers pings until it goes away on
	// its own.
	frame, err := protocol.BuildFrame(protocol.MsgTypePing, protocol.PingRequest{Power: 50})
	require.NoError(t, err)
	_, err = conn1.Write(frame)
	require.NoError(t, err)

	resp := readFrame(t, conn1)
	assert.Equal(t, byte(protocol.MsgTypePingAck), protocol.Type(resp))
}

func startServer(t *testing.T) (*config.Server, *registry.Registry) {
	t.Helper()

	certDir := generateTestCertificates(t)
	port := getFreePort(t)

	cfg := &config.Server{
		TCP: config.TCP{
			Listen: config.Listen{IP: "127.0.0.1", Port: port},
			TLS: config.ServerTLS{
				CertFile: filepath.Join(certDir, "server.crt"),
				KeyFile:  filepath.Join(certDir, "server.key"),
			},
		},
	}
	cfg.ApplyDefaults()

	reg := registry.New(zerolog.Nop())
	srv, err := server.New(cfg, storage.NewMemoryStore(), legacycrypt.Cipher{}, reg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Logf("server error: %v", err)
		}
	}()
	waitForListener(t, port)

	return cfg, reg
}

func dialAndLogin(t *testing.T, cfg *config.Server, udid string) net.Conn {
	t.Helper()

	conn, err := tls.Dial("tcp", cfg.TCP.Addr(), &tls.Config{InsecureSkipVerify: true})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	frame, err := protocol.BuildFrame(protocol.MsgTypeLogin, protocol.LoginRequest{
		UDID: udid,
		IMEI: "861234567890123",
		MAC:  "aa:bb:cc:dd:ee:ff",
		SSN:  "861234567890123",
	})
	require.NoError(t, err)
	_, err = conn.Write(frame)
	require.NoError(t, err)

	resp := readFrame(t, conn)
	require.Equal(t, byte(protocol.MsgTypeLogin), protocol.Type(resp))

	var login protocol.LoginResponse
	msg, err := protocol.ParseJSON(resp)
	require.NoError(t, err)
	require.NoError(t, msg.Decode(&login))
	require.Equal(t, 1, login.Status)

	return conn
}

// readFrame blocks until one complete frame arrives on conn.
func readFrame(t *testing.T, conn net.Conn) []byte {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	defer conn.SetReadDeadline(time.Time{})

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

func generateTestCertificates(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	caKey, caCert, err := certs.GenerateCA(1)
	require.NoError(t, err)
	serverKey, serverCert, err := certs.GenerateServerCert(caKey, caCert, 1)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "server.crt"), certs.EncodeCertificate(serverCert), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "server.key"), certs.EncodePrivateKey(serverKey), 0o600))
	return dir
}

func getFreePort(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func waitForListener(t *testing.T, port int) {
	t.Helper()

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	require.Eventually(t, func() bool {
		conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 5*time.Second, 50*time.Millisecond, "listener never came up")
}
