package server

import "github.com/watchgate/watchgate/storage"

type resultKind int

const (
	kindFailure resultKind = iota
	kindReply
	kindAuthenticated
	kindNoReply
)

// Result is the outcome of a message handler. The zero value answers the
// device with the generic error frame.
type Result struct {
	kind   resultKind
	frame  []byte
	device *storage.Device
}

// Failure answers the device with the generic error frame.
func Failure() Result {
	return Result{kind: kindFailure}
}

// Reply answers the device with a prebuilt frame.
func Reply(frame []byte) Result {
	return Result{kind: kindReply, frame: frame}
}

// Authenticated marks the session as belonging to device and answers with
// frame. The session binds itself into the registry before replying.
func Authenticated(device *storage.Device, frame []byte) Result {
	return Result{kind: kindAuthenticated, frame: frame, device: device}
}

// NoReply keeps the connection open without answering.
func NoReply() Result {
	return Result{kind: kindNoReply}
}
