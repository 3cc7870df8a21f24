// Package storage defines the narrow persistence operations the protocol
// core needs, decoupled from any particular backend. The in-memory
// implementation in memory.go backs tests and standalone deployments.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/watchgate/watchgate/protocol"
)

// Sentinel errors
var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

// Device is the persisted state of one watch, keyed by udid.
type Device struct {
	UDID          string
	IMEI          string
	IMSI          string
	SSN           string
	MAC           string
	ICCID         string
	BabyID        int64
	HTTPToken     string
	IsBound       bool
	IsHalted      bool
	DeviceVersion string

	LastPower        int
	LastPowerPercent int
	LastSignal       int
	LastVoltage      int
	LastPingTime     time.Time
	LastCharging     string

	LastLogin time.Time
}

// Contact type values on the wire and in storage.
const (
	ContactTypeNormal = 1
	ContactTypeFamily = 2
	ContactTypeFriend = 3
)

// Contact is one address-book entry bound to a device.
type Contact struct {
	DeviceUDID   string
	UserID       int64
	Name         string
	Phone        string
	Ext          []string
	ContactsType int
	Auth         int
	Photo        string
	Admin        int
	Spell        string
	CreatedAt    time.Time
}

// WirePerson converts a contact to its wire shape. Admins present as device
// type 100, everything else as 2; the watch hides types 0 and 1 in the
// family group.
func (c Contact) WirePerson() protocol.ContactPerson {
	deviceType := 2
	if c.Admin == 1 {
		deviceType = 100
	}
	ext := c.Ext
	if ext == nil {
		ext = []string{}
	}
	return protocol.ContactPerson{
		UserID:       c.UserID,
		Name:         c.Name,
		Phone:        c.Phone,
		Photo:        c.Photo,
		ContactsType: c.ContactsType,
		Admin:        c.Admin,
		Spell:        c.Spell,
		DeviceType:   deviceType,
		Auth:         c.Auth,
		Ext:          ext,
	}
}

// Group returns the contact-sync group name this contact belongs to. Types
// outside the known set fall into the normal contacts group.
func (c Contact) Group() string {
	switch c.ContactsType {
	case ContactTypeFamily:
		return protocol.GroupFamily
	case ContactTypeFriend:
		return protocol.GroupFriends
	default:
		return protocol.GroupContacts
	}
}

// LocationPackage is one location upload batch.
type LocationPackage struct {
	DeviceUDID string
	MsgID      string
	Strategy   int
	ReceivedAt time.Time
}

// LocationPoint is one reading inside a package, stored in upload order.
type LocationPoint struct {
	Stamp        int64
	Power        int
	Signal       int
	SOS          int
	ReplyLoc     int
	GeoEncrypted string
	GeoDecrypted string
	ValidWifis   string
	CreatedAt    time.Time
}

// CallRecord is one call-log entry, unique per watch-generated record id.
type CallRecord struct {
	DeviceUDID string
	RecordID   int64
	Phone      string
	Name       string
	CallType   int
	Stamp      time.Time
	Duration   int
	GeoData    string
	IsRead     bool
	IsSync     bool
}

// ChatLog is one stored chat message, unique per message id.
type ChatLog struct {
	DeviceUDID  string
	MessageID   string
	ChatType    int
	ContentType int
	FromUserID  int64
	ToID        int64
	Stamp       int64
	ContentText string
	FilePath    string
	VoiceLength int
	ReceivedAt  time.Time
}

// Chat content types
const (
	ChatContentVoice = 1
	ChatContentText  = 2
	ChatContentImage = 3
	ChatContentEmoji = 4
	ChatContentVideo = 6
)

// SmsMessage is one reported SMS.
type SmsMessage struct {
	DeviceUDID string
	Message    string
	Phone      string
	ErrorCause int
	Stamp      time.Time
}

// Store is the persistence collaborator of the protocol core and the HTTP
// API. Implementations must be safe for concurrent use.
type Store interface {
	// GetOrCreateDevice returns the device with the given udid, creating it
	// from defaults when absent. The second result reports creation.
	GetOrCreateDevice(ctx context.Context, udid string, defaults Device) (*Device, bool, error)
	UpdateDevice(ctx context.Context, dev *Device) error
	DeviceByUDID(ctx context.Context, udid string) (*Device, error)
	// DeviceByToken authenticates HTTP requests by http_token + baby_id.
	DeviceByToken(ctx context.Context, token string, babyID int64) (*Device, error)

	CreateLocationPackage(ctx context.Context, pkg LocationPackage, points []LocationPoint) error

	// UpsertCallRecord creates or replaces a record by its watch-generated
	// id. The result reports whether a new record was created.
	UpsertCallRecord(ctx context.Context, rec CallRecord) (bool, error)

	CreateSmsMessage(ctx context.Context, sms SmsMessage) error

	ChatLogExists(ctx context.Context, udid, messageID string) (bool, error)
	CreateChatLog(ctx context.Context, log ChatLog) error

	// ContactsByDevice returns a device's contacts ordered by spell, then
	// name.
	ContactsByDevice(ctx context.Context, udid string) ([]Contact, error)
	ContactByUserID(ctx context.Context, udid string, userID int64) (*Contact, error)
	ContactExistsByPhone(ctx context.Context, udid, phone string) (bool, error)
	CreateContact(ctx context.Context, c Contact) error
	UpdateContact(ctx context.Context, c Contact) error
	DeleteContact(ctx context.Context, udid string, userID int64) error
}
