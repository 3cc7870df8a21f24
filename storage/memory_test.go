package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUDID = "0123456789abcdef"

func TestGetOrCreateDevice(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	dev, created, err := s.GetOrCreateDevice(ctx, testUDID, Device{
		IMEI:   "861234567890123",
		BabyID: 1700000000,
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, testUDID, dev.UDID)
	assert.Equal(t, int64(1700000000), dev.BabyID)

	// A second lookup finds the stored device and ignores the defaults.
	again, created, err := s.GetOrCreateDevice(ctx, testUDID, Device{BabyID: 999})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, int64(1700000000), again.BabyID)
}

func TestGetOrCreateDevice_ReturnsClone(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	dev, _, err := s.GetOrCreateDevice(ctx, testUDID, Device{})
	require.NoError(t, err)
	dev.IMEI = "tampered"

	stored, err := s.DeviceByUDID(ctx, testUDID)
	require.NoError(t, err)
	assert.Empty(t, stored.IMEI)
}

func TestUpdateDevice(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, _, err := s.GetOrCreateDevice(ctx, testUDID, Device{})
	require.NoError(t, err)

	dev, err := s.DeviceByUDID(ctx, testUDID)
	require.NoError(t, err)
	dev.LastPower = 77
	require.NoError(t, s.UpdateDevice(ctx, dev))

	stored, err := s.DeviceByUDID(ctx, testUDID)
	require.NoError(t, err)
	assert.Equal(t, 77, stored.LastPower)

	err = s.UpdateDevice(ctx, &Device{UDID: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeviceByToken(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, _, err := s.GetOrCreateDevice(ctx, testUDID, Device{
		HTTPToken: "tok-1",
		BabyID:    1700000000,
	})
	require.NoError(t, err)

	dev, err := s.DeviceByToken(ctx, "tok-1", 1700000000)
	require.NoError(t, err)
	assert.Equal(t, testUDID, dev.UDID)

	_, err = s.DeviceByToken(ctx, "tok-1", 42)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.DeviceByToken(ctx, "wrong", 1700000000)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateLocationPackage(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	points := []LocationPoint{
		{Stamp: 100, Power: 3},
		{Stamp: 200, Power: 2},
	}
	err := s.CreateLocationPackage(ctx, LocationPackage{
		DeviceUDID: testUDID,
		MsgID:      "pkg-1",
		Strategy:   1,
	}, points)
	require.NoError(t, err)

	assert.Equal(t, 1, s.LocationPackageCount())
	got := s.LocationPoints("pkg-1")
	require.Len(t, got, 2)
	assert.Equal(t, int64(100), got[0].Stamp)
	assert.Equal(t, int64(200), got[1].Stamp)
}

func TestUpsertCallRecord(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	created, err := s.UpsertCallRecord(ctx, CallRecord{
		DeviceUDID: testUDID,
		RecordID:   55,
		Phone:      "13800000001",
	})
	require.NoError(t, err)
	assert.True(t, created)

	// Redelivery of the same record replaces it in place.
	created, err = s.UpsertCallRecord(ctx, CallRecord{
		DeviceUDID: testUDID,
		RecordID:   55,
		Phone:      "13800000002",
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 1, s.CallRecordCount())
}

func TestChatLogDuplicate(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	log := ChatLog{
		DeviceUDID:  testUDID,
		MessageID:   "msg-1",
		ContentType: ChatContentText,
		ContentText: "hello",
	}
	require.NoError(t, s.CreateChatLog(ctx, log))

	err := s.CreateChatLog(ctx, log)
	assert.ErrorIs(t, err, ErrDuplicate)

	exists, err := s.ChatLogExists(ctx, testUDID, "msg-1")
	require.NoError(t, err)
	assert.True(t, exists)

	// Same message id on another device does not count as that device's.
	exists, err = s.ChatLogExists(ctx, "other", "msg-1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestContactLifecycle(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	c := Contact{
		DeviceUDID:   testUDID,
		UserID:       42,
		Name:         "小明",
		Phone:        "13800000001",
		ContactsType: ContactTypeNormal,
		Spell:        "XIAOMING",
		CreatedAt:    time.Now(),
	}
	require.NoError(t, s.CreateContact(ctx, c))
	assert.ErrorIs(t, s.CreateContact(ctx, c), ErrDuplicate)

	got, err := s.ContactByUserID(ctx, testUDID, 42)
	require.NoError(t, err)
	assert.Equal(t, "小明", got.Name)

	exists, err := s.ContactExistsByPhone(ctx, testUDID, "13800000001")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = s.ContactExistsByPhone(ctx, testUDID, "13900000000")
	require.NoError(t, err)
	assert.False(t, exists)

	c.Name = "小红"
	require.NoError(t, s.UpdateContact(ctx, c))
	got, err = s.ContactByUserID(ctx, testUDID, 42)
	require.NoError(t, err)
	assert.Equal(t, "小红", got.Name)

	require.NoError(t, s.DeleteContact(ctx, testUDID, 42))
	_, err = s.ContactByUserID(ctx, testUDID, 42)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.UpdateContact(ctx, c), ErrNotFound)
	assert.ErrorIs(t, s.DeleteContact(ctx, testUDID, 42), ErrNotFound)
}

func TestContactsByDeviceOrdering(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for _, c := range []Contact{
		{DeviceUDID: testUDID, UserID: 1, Name: "丙", Spell: "BING"},
		{DeviceUDID: testUDID, UserID: 2, Name: "甲", Spell: "JIA"},
		{DeviceUDID: testUDID, UserID: 3, Name: "乙", Spell: "BING"},
		{DeviceUDID: "other", UserID: 4, Name: "外", Spell: "WAI"},
	} {
		require.NoError(t, s.CreateContact(ctx, c))
	}

	got, err := s.ContactsByDevice(ctx, testUDID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	// Spell first, then name breaks the tie.
	assert.Equal(t, int64(1), got[0].UserID)
	assert.Equal(t, int64(3), got[1].UserID)
	assert.Equal(t, int64(2), got[2].UserID)
}

func TestWirePerson(t *testing.T) {
	admin := Contact{UserID: 1, Admin: 1, ContactsType: ContactTypeFamily}
	assert.Equal(t, 100, admin.WirePerson().DeviceType)

	plain := Contact{UserID: 2, ContactsType: ContactTypeNormal}
	p := plain.WirePerson()
	assert.Equal(t, 2, p.DeviceType)
	assert.NotNil(t, p.Ext)
	assert.Empty(t, p.Ext)
}

func TestGroup(t *testing.T) {
	assert.Equal(t, "family_users", Contact{ContactsType: ContactTypeFamily}.Group())
	assert.Equal(t, "friends", Contact{ContactsType: ContactTypeFriend}.Group())
	assert.Equal(t, "contacts", Contact{ContactsType: ContactTypeNormal}.Group())
	assert.Equal(t, "contacts", Contact{ContactsType: 0}.Group())
}
