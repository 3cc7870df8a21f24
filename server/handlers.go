package server

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/watchgate/watchgate/config"
	"github.com/watchgate/watchgate/protocol"
	"github.com/watchgate/watchgate/storage"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// geoKeyType selects the DES key the firmware encrypts coordinates with.
const geoKeyType = 5

// GeoDecrypter recovers coordinate strings from their transport obfuscation.
type GeoDecrypter interface {
	DecryptBase64(encoded string, keyType int) (string, error)
}

// Handlers implements the per-message-type behaviors over a Store.
type Handlers struct {
	store  storage.Store
	geo    GeoDecrypter
	device *config.Device
	media  *config.Media
	logger zerolog.Logger
}

func NewHandlers(store storage.Store, geo GeoDecrypter, conf *config.Server, logger zerolog.Logger) *Handlers {
	return &Handlers{
		store:  store,
		geo:    geo,
		device: &conf.Device,
		media:  &conf.Media,
		logger: logger.With().Str("com", "handler").Logger(),
	}
}

// Login validates identity fields, creates or refreshes the device record and
// authenticates the session. Invalid fields are answered in-band instead of
// with the generic error frame so the watch surfaces the message.
func (h *Handlers) Login(ctx context.Context, _ *storage.Device, msg protocol.ParsedMessage) Result {
	var req protocol.LoginRequest
	if msg.Failed() || msg.Decode(&req) != nil {
		return Failure()
	}

	if len(req.UDID) < 16 || len(req.IMEI) < 15 || len(req.MAC) < 17 {
		h.logger.Warn().
			Str("udid", req.UDID).
			Str("imei", req.IMEI).
			Str("mac", req.MAC).
			Msg("login with invalid identity fields")
		frame, err := protocol.BuildFrame(protocol.MsgTypeLogin, protocol.StatusResponse{Status: 0, Msg: "params invalid."})
		if err != nil {
			return Failure()
		}
		return Reply(frame)
	}

	now := time.Now()
	dev, created, err := h.store.GetOrCreateDevice(ctx, req.UDID, storage.Device{
		UDID:   req.UDID,
		BabyID: now.Unix(),
		SSN:    req.IMEI,
		ICCID:  req.ICCID,
		IMEI:   req.IMEI,
		IMSI:   req.IMSI,
		MAC:    req.MAC,
	})
	if err != nil {
		h.logger.Error().Err(err).Str("udid", req.UDID).Msg("device lookup failed")
		return Failure()
	}

	// Every login mints a fresh HTTP token.
	dev.HTTPToken = uuid.NewString()
	dev.DeviceVersion = req.DeviceVersion
	dev.SSN = req.SSN
	dev.MAC = req.MAC
	dev.IMEI = req.IMEI
	dev.IMSI = req.IMSI
	dev.LastLogin = now
	if err := h.store.UpdateDevice(ctx, dev); err != nil {
		h.logger.Error().Err(err).Str("udid", dev.UDID).Msg("device update failed")
		return Failure()
	}

	h.logger.Info().
		Str("udid", dev.UDID).
		Bool("created", created).
		Msg("device logged in")

	resp := protocol.LoginResponse{
		Status:    1,
		Binded:    boolToInt(dev.IsBound),
		Halted:    boolToInt(dev.IsHalted),
		BabyID:    dev.BabyID,
		HTTPToken: dev.HTTPToken,
		Stamp:     now.Unix(),
		Msg:       "login in successful.",

		ServiceNumber: h.device.ServiceNumber,
		PingPong:      h.device.PingInterval,

		EmoticonVer:   1,
		ContactPttVer: 1,
		FamilyPttVer:  1,
		FriendPttVer:  1,
		ThemeVer:      "1",
		DialVer:       "1",
		CoverVer:      "1",
	}
	// An unbound watch renders qr_url+qr_code as its pairing QR code.
	if !dev.IsBound {
		q := url.Values{}
		q.Set("u", dev.UDID)
		q.Set("i", req.IMEI)
		resp.QRCode = h.device.QRCodeBase + "?" + q.Encode()
		resp.QRURL = h.device.QRURL
	}

	frame, err := protocol.BuildFrame(protocol.MsgTypeLogin, resp)
	if err != nil {
		return Failure()
	}
	return Authenticated(dev, frame)
}

// Ping records the periodic status report and acknowledges it.
func (h *Handlers) Ping(ctx context.Context, dev *storage.Device, msg protocol.ParsedMessage) Result {
	if dev == nil || msg.Failed() {
		return Failure()
	}
	var req protocol.PingRequest
	if err := msg.Decode(&req); err != nil {
		return Failure()
	}

	dev.LastPower = req.Power
	dev.LastPowerPercent = req.PowerPercent
	dev.LastSignal = req.Signal
	dev.LastVoltage = req.Voltage
	dev.LastPingTime = time.Now()
	if err := h.store.UpdateDevice(ctx, dev); err != nil {
		h.logger.Error().Err(err).Str("udid", dev.UDID).Msg("ping update failed")
		return Failure()
	}

	frame, err := protocol.BuildFrame(protocol.MsgTypePingAck, protocol.StatusResponse{Status: 1})
	if err != nil {
		return Failure()
	}
	return Reply(frame)
}

// Status records charging-state transitions.
func (h *Handlers) Status(ctx context.Context, dev *storage.Device, msg protocol.ParsedMessage) Result {
	if dev == nil || msg.Failed() {
		return Failure()
	}
	var req protocol.ChargingRequest
	if err := msg.Decode(&req); err != nil {
		return Failure()
	}
	if req.Charging == "" {
		req.Charging = "off"
	}

	if dev.LastCharging != req.Charging {
		dev.LastCharging = req.Charging
		dev.LastPingTime = time.Now()
		if err := h.store.UpdateDevice(ctx, dev); err != nil {
			h.logger.Error().Err(err).Str("udid", dev.UDID).Msg("charging update failed")
			return Failure()
		}
	}

	frame, err := protocol.BuildFrame(protocol.MsgTypeStatus, protocol.StatusResponse{Status: 1})
	if err != nil {
		return Failure()
	}
	return Reply(frame)
}

// Location stores one upload batch and acknowledges it with the package id.
// Both the plain (0x0b) and compressed (0x7d) variants land here; the ack is
// always a 0x0b frame.
func (h *Handlers) Location(ctx context.Context, dev *storage.Device, msg protocol.ParsedMessage) Result {
	if dev == nil || msg.Failed() {
		return Failure()
	}
	var upload protocol.LocationUpload
	if err := msg.Decode(&upload); err != nil {
		return Failure()
	}
	if upload.ID == "" {
		h.logger.Warn().Str("udid", dev.UDID).Msg("location package without id")
	}
	if len(upload.Data) == 0 {
		return Failure()
	}

	now := time.Now()
	points := make([]storage.LocationPoint, 0, len(upload.Data))
	for _, r := range upload.Data {
		points = append(points, storage.LocationPoint{
			Stamp:        r.Stamp,
			Power:        r.Power,
			Signal:       r.Signal,
			SOS:          r.SOS,
			ReplyLoc:     r.ReplyLoc,
			GeoEncrypted: geoRawString(r.Geo),
			GeoDecrypted: h.decodeGeo(r.Geo),
			ValidWifis:   wifiIDs(r.ValidWifi),
			CreatedAt:    now,
		})
	}

	err := h.store.CreateLocationPackage(ctx, storage.LocationPackage{
		DeviceUDID: dev.UDID,
		MsgID:      upload.ID,
		Strategy:   upload.Strategy,
		ReceivedAt: now,
	}, points)
	if err != nil {
		h.logger.Error().Err(err).Str("udid", dev.UDID).Msg("location store failed")
		return Failure()
	}

	frame, err := protocol.BuildFrame(protocol.MsgTypeLocation, protocol.LocationAck{Status: 1, ID: upload.ID})
	if err != nil {
		return Failure()
	}
	return Reply(frame)
}

// decodeGeo recovers a storable coordinate string from the geo field: legacy
// firmware ships a base64 DES-encrypted string, newer firmware a plain JSON
// object. Undecryptable values degrade to an empty string.
func (h *Handlers) decodeGeo(raw jsoniter.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		if encoded == "" {
			return ""
		}
		plain, err := h.geo.DecryptBase64(encoded, geoKeyType)
		if err != nil {
			h.logger.Debug().Err(err).Msg("geo decrypt failed")
			return ""
		}
		return plain
	}
	return string(raw)
}

// geoRawString keeps the on-the-wire form of the geo field.
func geoRawString(raw jsoniter.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// wifiIDs flattens the seen-AP list into the comma-joined form the location
// table stores. Entries may be numbers or strings depending on firmware.
func wifiIDs(list protocol.WifiList) string {
	if len(list.ID) == 0 {
		return ""
	}
	parts := make([]byte, 0, 64)
	for i, raw := range list.ID {
		if i > 0 {
			parts = append(parts, ',')
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			parts = append(parts, s...)
		} else {
			parts = append(parts, raw...)
		}
	}
	return string(parts)
}

// CallRecord upserts a call-log batch keyed by the watch-generated record ids
// and echoes the batch id back.
func (h *Handlers) CallRecord(ctx context.Context, dev *storage.Device, msg protocol.ParsedMessage) Result {
	if dev == nil || msg.Failed() {
		return Failure()
	}
	var upload protocol.CallRecordUpload
	if err := msg.Decode(&upload); err != nil {
		return Failure()
	}
	if upload.Recents == nil {
		return Failure()
	}

	for _, rec := range upload.Recents {
		if rec.ID == 0 {
			continue
		}
		created, err := h.store.UpsertCallRecord(ctx, storage.CallRecord{
			DeviceUDID: dev.UDID,
			RecordID:   rec.ID,
			Phone:      rec.Phone,
			Name:       rec.Name,
			CallType:   rec.In,
			Stamp:      time.Unix(rec.Stamp, 0).UTC(),
			Duration:   rec.Duration,
			GeoData:    string(rec.GeoData),
			IsRead:     rec.IsRead == 1,
			IsSync:     true,
		})
		if err != nil {
			h.logger.Error().Err(err).Int64("record_id", rec.ID).Msg("call record store failed")
			continue
		}
		h.logger.Info().
			Str("udid", dev.UDID).
			Int64("record_id", rec.ID).
			Bool("created", created).
			Msg("call record stored")
	}

	ack := protocol.CallRecordAck{ID: upload.ID}
	if ack.ID == nil {
		ack.ID = protocol.NullProfile
	}
	frame, err := protocol.BuildFrame(protocol.MsgTypeCallRecord, ack)
	if err != nil {
		return Failure()
	}
	return Reply(frame)
}

// Sms stores a reported SMS. The firmware retries on the error frame it gets
// back, which is harmless: reports are plain inserts.
func (h *Handlers) Sms(ctx context.Context, dev *storage.Device, msg protocol.ParsedMessage) Result {
	if dev == nil || msg.Failed() {
		return Failure()
	}
	var upload protocol.SmsUpload
	if err := msg.Decode(&upload); err != nil {
		return Failure()
	}

	err := h.store.CreateSmsMessage(ctx, storage.SmsMessage{
		DeviceUDID: dev.UDID,
		Message:    upload.Message,
		Phone:      upload.Phone,
		ErrorCause: coerceInt(upload.ErrorCause),
		Stamp:      time.Now(),
	})
	if err != nil {
		h.logger.Error().Err(err).Str("udid", dev.UDID).Msg("sms store failed")
	}
	return Failure()
}

// Chat stores one chat message, saving voice attachments to the media
// directory, and acknowledges with a 0x03 frame. Redelivered ids are
// acknowledged again without a second store.
func (h *Handlers) Chat(ctx context.Context, dev *storage.Device, msg protocol.ParsedMessage) Result {
	if dev == nil || msg.Failed() {
		return Failure()
	}
	var chat protocol.ChatMessage
	if err := msg.Decode(&chat); err != nil {
		return Failure()
	}
	if chat.ID == "" {
		h.logger.Warn().Str("udid", dev.UDID).Msg("chat message without id")
		return Failure()
	}

	exists, err := h.store.ChatLogExists(ctx, dev.UDID, chat.ID)
	if err != nil {
		return Failure()
	}
	if exists {
		h.logger.Debug().Str("message_id", chat.ID).Msg("duplicate chat message, ack only")
		return h.chatAck(chat.ID)
	}

	entry := storage.ChatLog{
		DeviceUDID:  dev.UDID,
		MessageID:   chat.ID,
		ChatType:    chat.ChatType,
		ContentType: chat.ContentType,
		FromUserID:  chat.FromUserID,
		ToID:        chat.ToID,
		Stamp:       chat.Stamp,
		ReceivedAt:  time.Now(),
	}
	switch chat.ContentType {
	case storage.ChatContentText:
		entry.ContentText = chat.Content.Text
	case storage.ChatContentVoice:
		entry.VoiceLength = chat.Content.VoiceLength
		if len(msg.Attachment) > 0 {
			rel, err := h.saveVoiceClip(dev.UDID, chat.ID, msg.Attachment)
			if err != nil {
				h.logger.Error().Err(err).Str("message_id", chat.ID).Msg("voice clip save failed")
				return Failure()
			}
			entry.FilePath = rel
		}
	}

	if err := h.store.CreateChatLog(ctx, entry); err != nil {
		// Lost the race against a concurrent redelivery; the row is there.
		if err != storage.ErrDuplicate {
			h.logger.Error().Err(err).Str("message_id", chat.ID).Msg("chat store failed")
			return Failure()
		}
	}
	return h.chatAck(chat.ID)
}

func (h *Handlers) chatAck(messageID string) Result {
	frame, err := protocol.BuildFrame(protocol.MsgTypeChatAck, protocol.ChatAck{ID: messageID, Type: 122})
	if err != nil {
		return Failure()
	}
	return Reply(frame)
}

// saveVoiceClip writes an .amr attachment under the media directory and
// returns the path relative to it.
func (h *Handlers) saveVoiceClip(udid, messageID string, data []byte) (string, error) {
	rel := filepath.Join("voice_messages", udid, messageID+".amr")
	full := filepath.Join(h.media.Dir, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", err
	}
	return rel, nil
}

// coerceInt reads a JSON value that firmware sends either as a number or a
// numeric string.
func coerceInt(raw jsoniter.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return 0
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
