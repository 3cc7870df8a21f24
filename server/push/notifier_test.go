package push

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchgate/watchgate/protocol"
	"github.com/watchgate/watchgate/server/registry"
	"github.com/watchgate/watchgate/storage"
)

const testUDID = "0123456789abcdef"

type fakeWriter struct {
	frames [][]byte
	err    error
}

func (f *fakeWriter) WriteFrame(frame []byte) error {
	if f.err != nil {
		return f.err
	}
	f.frames = append(f.frames, frame)
	return nil
}

// newTestNotifier wires a notifier around an in-memory store and registry.
// handleEvent never touches the NATS connection, so none is needed.
func newTestNotifier(t *testing.T) (*Notifier, *storage.MemoryStore, *registry.Registry) {
	t.Helper()
	store := storage.NewMemoryStore()
	reg := registry.New(zerolog.Nop())
	n := &Notifier{
		subject:  "watchgate.push",
		registry: reg,
		store:    store,
		logger:   zerolog.Nop(),
	}
	return n, store, reg
}

func seedContact(t *testing.T, store *storage.MemoryStore, userID int64, contactsType, admin int) {
	t.Helper()
	err := store.CreateContact(context.Background(), storage.Contact{
		DeviceUDID:   testUDID,
		UserID:       userID,
		Name:         "小明",
		Phone:        "13800000001",
		ContactsType: contactsType,
		Auth:         7,
		Admin:        admin,
		Spell:        "XIAOMING",
	})
	require.NoError(t, err)
}

func TestHandleEvent_DeliversContactAdd(t *testing.T) {
	n, store, reg := newTestNotifier(t)
	seedContact(t, store, 42, storage.ContactTypeNormal, 0)
	w := &fakeWriter{}
	reg.Bind(testUDID, w)

	n.handleEvent(context.Background(),
		[]byte(`{"command":"add_contact","udid":"`+testUDID+`","contact_id":42}`))

	require.Len(t, w.frames, 1)
	frame := w.frames[0]
	require.Equal(t, byte(protocol.MsgTypeGeneral), protocol.Type(frame))

	var push protocol.ContactPush
	require.NoError(t, json.Unmarshal(frame[protocol.HeaderLen:], &push))
	assert.Equal(t, protocol.SubTypeContacts, push.SubType)

	group, ok := push.Data[protocol.GroupContacts]
	require.True(t, ok)
	require.Len(t, group.Data, 1)
	assert.Equal(t, protocol.ContactOpAdd, group.Data[0].Type)
	require.Len(t, group.Data[0].Person, 1)
	assert.Equal(t, int64(42), group.Data[0].Person[0].UserID)
	assert.Equal(t, "小明", group.Data[0].Person[0].Name)

	// Incremental pushes carry no profile key, unlike a full sync.
	assert.NotContains(t, string(frame[protocol.HeaderLen:]), `"profile"`)
}

func TestHandleEvent_FamilyContactGoesToFamilyGroup(t *testing.T) {
	n, store, reg := newTestNotifier(t)
	seedContact(t, store, 7, storage.ContactTypeFamily, 1)
	w := &fakeWriter{}
	reg.Bind(testUDID, w)

	n.handleEvent(context.Background(),
		[]byte(`{"command":"add_contact","udid":"`+testUDID+`","contact_id":7}`))

	require.Len(t, w.frames, 1)
	var push protocol.ContactPush
	require.NoError(t, json.Unmarshal(w.frames[0][protocol.HeaderLen:], &push))
	group, ok := push.Data[protocol.GroupFamily]
	require.True(t, ok)
	require.Len(t, group.Data[0].Person, 1)
	assert.Equal(t, 100, group.Data[0].Person[0].DeviceType)
}

func TestHandleEvent_StringContactID(t *testing.T) {
	n, store, reg := newTestNotifier(t)
	seedContact(t, store, 42, storage.ContactTypeNormal, 0)
	w := &fakeWriter{}
	reg.Bind(testUDID, w)

	n.handleEvent(context.Background(),
		[]byte(`{"command":"add_contact","udid":"`+testUDID+`","contact_id":"42"}`))

	assert.Len(t, w.frames, 1)
}

func TestHandleEvent_NoLiveSession(t *testing.T) {
	n, store, _ := newTestNotifier(t)
	seedContact(t, store, 42, storage.ContactTypeNormal, 0)

	// Must not panic or block; the event is simply dropped.
	n.handleEvent(context.Background(),
		[]byte(`{"command":"add_contact","udid":"`+testUDID+`","contact_id":42}`))
}

func TestHandleEvent_MalformedEvents(t *testing.T) {
	n, _, reg := newTestNotifier(t)
	w := &fakeWriter{}
	reg.Bind(testUDID, w)

	for _, data := range []string{
		`not json`,
		`{"command":"wipe_device","udid":"` + testUDID + `","contact_id":1}`,
		`{"command":"add_contact","contact_id":1}`,
		`{"command":"add_contact","udid":"` + testUDID + `"}`,
		`{"command":"add_contact","udid":"` + testUDID + `","contact_id":"abc"}`,
	} {
		n.handleEvent(context.Background(), []byte(data))
	}

	assert.Empty(t, w.frames)
}

func TestHandleEvent_UnknownContact(t *testing.T) {
	n, _, reg := newTestNotifier(t)
	w := &fakeWriter{}
	reg.Bind(testUDID, w)

	n.handleEvent(context.Background(),
		[]byte(`{"command":"add_contact","udid":"`+testUDID+`","contact_id":99}`))

	assert.Empty(t, w.frames)
}

func TestHandleEvent_WriteFailureIsTolerated(t *testing.T) {
	n, store, reg := newTestNotifier(t)
	seedContact(t, store, 42, storage.ContactTypeNormal, 0)
	w := &fakeWriter{err: errors.New("broken pipe")}
	reg.Bind(testUDID, w)

	n.handleEvent(context.Background(),
		[]byte(`{"command":"add_contact","udid":"`+testUDID+`","contact_id":42}`))

	assert.Empty(t, w.frames)
}

func TestCoerceID(t *testing.T) {
	for _, tc := range []struct {
		raw  string
		want int64
		ok   bool
	}{
		{`42`, 42, true},
		{`"42"`, 42, true},
		{`" 42"`, 0, false},
		{`"abc"`, 0, false},
		{`{}`, 0, false},
		{``, 0, false},
	} {
		got, ok := coerceID([]byte(tc.raw))
		assert.Equal(t, tc.ok, ok, "raw %q", tc.raw)
		assert.Equal(t, tc.want, got, "raw %q", tc.raw)
	}
}
