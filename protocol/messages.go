package protocol

import jsoniter "github.com/json-iterator/go"

// StatusResponse is the minimal reply body shared by several message types.
type StatusResponse struct {
	Status int    `json:"status"`
	Msg    string `json:"msg"`
}

// LoginRequest is the body of a 0x14 frame.
type LoginRequest struct {
	UDID          string `json:"udid"`
	ICCID         string `json:"iccid"`
	IMEI          string `json:"imei"`
	IMSI          string `json:"imsi"`
	MAC           string `json:"mac"`
	SSN           string `json:"ssn"`
	DeviceVersion string `json:"device_version"`
}

// LoginResponse is the body of the 0x14 reply. Field set and semantics follow
// the firmware's expectations; version counters above the device's cached
// values trigger resource re-downloads over the HTTP API.
type LoginResponse struct {
	Status    int    `json:"status"`
	Binded    int    `json:"binded"`
	Halted    int    `json:"halted"`
	BabyID    int64  `json:"baby_id"`
	HTTPToken string `json:"http_token"`
	Stamp     int64  `json:"stamp"`
	Msg       string `json:"msg"`

	// QR code contents shown on the watch while unbound: qr_url + qr_code
	QRCode string `json:"qr_code"`
	QRURL  string `json:"qr_url"`

	ServiceNumber string `json:"service_number"`
	PingPong      int    `json:"pingpong"`

	EmoticonVer   int    `json:"emoticon_ver"`
	ContactPttVer int    `json:"contact_ptt_ver"`
	FamilyPttVer  int    `json:"family_ptt_ver"`
	FriendPttVer  int    `json:"friend_ptt_ver"`
	ThemeVer      string `json:"theme_ver"`
	DialVer       string `json:"dial_ver"`
	CoverVer      string `json:"cover_ver"`

	CurrentMonth     int `json:"current_month"`
	CurrentRemainder int `json:"current_remainder"`
	Expired          int `json:"expired"`
	NextRemainder    int `json:"next_remainder"`
}

// PingRequest is the body of a 0x01 frame.
type PingRequest struct {
	Power        int `json:"power"`
	PowerPercent int `json:"power_percent"`
	Signal       int `json:"signal"`
	Voltage      int `json:"voltage"`
}

// ChargingRequest is the body of a 0x2d frame.
type ChargingRequest struct {
	Charging string `json:"charging"`
}

// GPSTime nests GPS fix timing inside a location reading.
type GPSTime struct {
	Duration int `json:"duration"`
	Type     int `json:"type"`
}

// WifiList carries the IDs of access points seen during a fix.
type WifiList struct {
	ID []jsoniter.RawMessage `json:"id"`
}

// LocationReading is one data point inside a location upload.
type LocationReading struct {
	Stamp    int64 `json:"stamp"`
	Power    int   `json:"power"`
	Signal   int   `json:"signal"`
	SOS      int   `json:"sos"`
	ReplyLoc int   `json:"reply_loc"`

	// Geo is either a base64 string of DES-encrypted coordinates or a plain
	// JSON object, depending on firmware generation.
	Geo jsoniter.RawMessage `json:"geo"`

	ValidWifi   WifiList `json:"valid_wifi"`
	IsGps       int      `json:"isGps"`
	GPSTime     GPSTime  `json:"gps_time"`
	GPSTimeout  int      `json:"gps_timeout"`
	SearchCount int      `json:"search_count"`
	Wifi1       int      `json:"wifi_1"`
	Wifi2       int      `json:"wifi_2"`
	Wifi3       int      `json:"wifi_3"`
	Wifi1Valid  int      `json:"wifi_1_valid"`
	Wifi2Valid  int      `json:"wifi_2_valid"`
	Wifi3Valid  int      `json:"wifi_3_valid"`
}

// LocationUpload is the body of 0x0b and 0x7d frames.
type LocationUpload struct {
	ID       string            `json:"id"`
	Strategy int               `json:"strategy"`
	Data     []LocationReading `json:"data"`
}

// LocationAck echoes the package id back in a 0x0b reply.
type LocationAck struct {
	Status int    `json:"status"`
	Msg    string `json:"msg"`
	ID     string `json:"id"`
}

// CallRecordItem is one entry of a 0x34 upload.
type CallRecordItem struct {
	ID       int64               `json:"id"`
	Phone    string              `json:"phone"`
	Name     string              `json:"name"`
	In       int                 `json:"in"`
	Stamp    int64               `json:"stamp"`
	Duration int                 `json:"time"`
	GeoData  jsoniter.RawMessage `json:"geo_data"`
	IsRead   int                 `json:"is_read"`
}

// CallRecordUpload is the body of a 0x34 frame.
type CallRecordUpload struct {
	ID      jsoniter.RawMessage `json:"id"`
	Recents []CallRecordItem    `json:"recents"`
}

// CallRecordAck confirms a call-record batch in a 0x34 reply.
type CallRecordAck struct {
	ID               jsoniter.RawMessage `json:"id"`
	CurrentMonth     int                 `json:"current_month"`
	CurrentRemainder int                 `json:"current_remainder"`
	NextRemainder    int                 `json:"next_remainder"`
}

// SmsUpload is the body of a 0x39 frame.
type SmsUpload struct {
	Message    string              `json:"message"`
	Phone      string              `json:"phone"`
	ErrorCause jsoniter.RawMessage `json:"error_cause"`
}

// ChatContent carries the typed content of a chat message.
type ChatContent struct {
	Text        string `json:"text"`
	VoiceLength int    `json:"voice_length"`
}

// ChatMessage is the JSON head of a 0x7a frame.
type ChatMessage struct {
	ID          string      `json:"id"`
	ChatType    int         `json:"chat_type"`
	ContentType int         `json:"content_type"`
	FromUserID  int64       `json:"from_user_id"`
	ToID        int64       `json:"to_id"`
	Stamp       int64       `json:"stamp"`
	Content     ChatContent `json:"content"`
}

// ChatAck is the 0x03 reply. Type is always 122, the original message type.
type ChatAck struct {
	ID   string `json:"id"`
	Type int    `json:"type"`
}

// General envelope sub-types dispatched from 0x7b frames.
const (
	SubTypeContacts = 2
	SubTypeWeather  = 20
	SubTypeApps     = 32
)

// GeneralResponse wraps a sub-typed reply in a 0x7b frame.
type GeneralResponse struct {
	Status  int         `json:"status"`
	Msg     string      `json:"msg"`
	SubType int         `json:"sub_type"`
	UserID  string      `json:"user_id,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// ContactPush is the body of a server-initiated 0x7b contact push. Unlike
// GeneralResponse it carries no status envelope.
type ContactPush struct {
	SubType int             `json:"sub_type"`
	Data    ContactSyncData `json:"data"`
}

// Contact sync operation labels.
const (
	ContactOpAll = "all"
	ContactOpAdd = "add"
)

// ContactPerson is the wire shape of one contact entry.
type ContactPerson struct {
	UserID       int64    `json:"user_id"`
	Name         string   `json:"name"`
	Phone        string   `json:"phone"`
	Photo        string   `json:"photo"`
	ContactsType int      `json:"contacts_type"`
	Admin        int      `json:"admin"`
	Spell        string   `json:"spell"`
	DeviceType   int      `json:"device_type"`
	Auth         int      `json:"auth"`
	Ext          []string `json:"ext"`
}

// ContactOp groups contacts under an operation label ("all" or "add").
type ContactOp struct {
	Type   string          `json:"type"`
	Person []ContactPerson `json:"person"`
}

// FamilyProfile describes the family group shown on the watch.
type FamilyProfile struct {
	FamilyID    int64  `json:"family_id"`
	FamilyName  string `json:"family_name"`
	FamilyPhoto string `json:"family_photo"`
	Portrait    int    `json:"portrait"`
	Spell       string `json:"spell"`
}

// ContactGroup is one of the three sync groups. Profile is raw so that the
// full-sync shape can emit an explicit null for friends/contacts while the
// push shape omits the key entirely, matching what the firmware parses.
type ContactGroup struct {
	ToVersion int64               `json:"to_version"`
	Profile   jsoniter.RawMessage `json:"profile,omitempty"`
	Data      []ContactOp         `json:"data"`
}

// ContactSyncData maps group names (family_users, friends, contacts) to
// their sync payloads.
type ContactSyncData map[string]ContactGroup

// Contact sync group names keyed by contact type.
const (
	GroupFamily   = "family_users"
	GroupFriends  = "friends"
	GroupContacts = "contacts"
)

// NullProfile is the explicit JSON null emitted for groups without a profile
// in full contact syncs.
var NullProfile = jsoniter.RawMessage("null")

// WeatherInfo is the current-conditions block of a weather reply.
type WeatherInfo struct {
	AQ       string `json:"aq"`
	Icon     string `json:"icon"`
	Mositure string `json:"mositure"`
	PM25     int    `json:"pm25"`
	TempNow  int    `json:"temp_now"`
	Title    string `json:"title"`
	Weather  string `json:"weather"`
	Wind     string `json:"wind"`
}

// WeatherForecast is one day of the forecast block. The wire key "forcast"
// is the firmware's spelling.
type WeatherForecast struct {
	Date     string `json:"date"`
	Icon     string `json:"icon"`
	TempHigh int    `json:"temp_high"`
	TempLow  int    `json:"temp_low"`
}

// WeatherLife is the lifestyle-indices block of a weather reply.
type WeatherLife struct {
	CY      string `json:"cy"`
	CYDesc  string `json:"cy_desc"`
	DL      string `json:"dl"`
	DLDesc  string `json:"dl_desc"`
	GM      string `json:"gm"`
	GMDesc  string `json:"gm_desc"`
	ZWX     string `json:"zwx"`
	ZWXDesc string `json:"zwx_desc"`
}

// WeatherData is the data block of a sub_type 20 reply.
type WeatherData struct {
	Info    WeatherInfo       `json:"info"`
	Forcast []WeatherForecast `json:"forcast"`
	Life    WeatherLife       `json:"life"`
}
