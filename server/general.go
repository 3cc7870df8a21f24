package server

import (
	"context"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/watchgate/watchgate/protocol"
	"github.com/watchgate/watchgate/storage"
)

// generalTable routes the "sub_type" field of 0x7b envelopes.
var generalTable = map[int]struct {
	label  string
	handle func(h *Handlers, ctx context.Context, dev *storage.Device, msg protocol.ParsedMessage) Result
}{
	protocol.SubTypeContacts: {"contact_sync", (*Handlers).contactSync},
	protocol.SubTypeWeather:  {"weather", (*Handlers).weather},
	protocol.SubTypeApps:     {"apps", (*Handlers).apps},
}

// General sub-dispatches a 0x7b envelope on its sub_type field. An unknown
// but well-formed sub_type is ignored without a reply so that newer firmware
// probing optional services does not see errors; a missing or malformed
// sub_type gets the generic error frame.
func (h *Handlers) General(ctx context.Context, dev *storage.Device, msg protocol.ParsedMessage) Result {
	if msg.Failed() {
		return Failure()
	}
	var envelope struct {
		SubType jsoniter.RawMessage `json:"sub_type"`
	}
	if err := msg.Decode(&envelope); err != nil {
		return Failure()
	}
	if len(envelope.SubType) == 0 {
		h.logger.Warn().Msg("general envelope without sub_type")
		return Failure()
	}
	subType, ok := coerceSubType(envelope.SubType)
	if !ok {
		h.logger.Warn().Str("sub_type", string(envelope.SubType)).Msg("general envelope with malformed sub_type")
		return Failure()
	}

	sub, ok := generalTable[subType]
	if !ok {
		h.logger.Debug().Int("sub_type", subType).Msg("unknown general sub_type, ignoring")
		return NoReply()
	}
	h.logger.Debug().Str("sub", sub.label).Msg("general envelope dispatched")
	return sub.handle(h, ctx, dev, msg)
}

// coerceSubType accepts the integer forms firmware actually sends: a JSON
// number or a numeric string.
func coerceSubType(raw jsoniter.RawMessage) (int, bool) {
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return int(f), true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return v, true
		}
	}
	return 0, false
}

// contactSync answers a full address-book sync: all three groups with op
// "all", profiles present on family_users and explicitly null elsewhere.
func (h *Handlers) contactSync(ctx context.Context, dev *storage.Device, _ protocol.ParsedMessage) Result {
	if dev == nil {
		return Failure()
	}

	contacts, err := h.store.ContactsByDevice(ctx, dev.UDID)
	if err != nil {
		h.logger.Error().Err(err).Str("udid", dev.UDID).Msg("contact query failed")
		return Failure()
	}

	groups := map[string][]protocol.ContactPerson{
		protocol.GroupFamily:   {},
		protocol.GroupFriends:  {},
		protocol.GroupContacts: {},
	}
	for _, c := range contacts {
		groups[c.Group()] = append(groups[c.Group()], c.WirePerson())
	}

	familyProfile, err := json.Marshal(protocol.FamilyProfile{
		FamilyID:   dev.BabyID,
		FamilyName: "我的家",
		Spell:      "WODEJIA",
	})
	if err != nil {
		return Failure()
	}

	version := time.Now().Unix()
	data := protocol.ContactSyncData{
		protocol.GroupFamily: {
			ToVersion: version,
			Profile:   familyProfile,
			Data:      []protocol.ContactOp{{Type: protocol.ContactOpAll, Person: groups[protocol.GroupFamily]}},
		},
		protocol.GroupFriends: {
			ToVersion: version,
			Profile:   protocol.NullProfile,
			Data:      []protocol.ContactOp{{Type: protocol.ContactOpAll, Person: groups[protocol.GroupFriends]}},
		},
		protocol.GroupContacts: {
			ToVersion: version,
			Profile:   protocol.NullProfile,
			Data:      []protocol.ContactOp{{Type: protocol.ContactOpAll, Person: groups[protocol.GroupContacts]}},
		},
	}

	h.logger.Debug().
		Str("udid", dev.UDID).
		Int("contacts", len(contacts)).
		Msg("contact sync built")

	frame, err := protocol.BuildFrame(protocol.MsgTypeGeneral, protocol.GeneralResponse{
		Status:  1,
		SubType: protocol.SubTypeContacts,
		Data:    data,
	})
	if err != nil {
		return Failure()
	}
	return Reply(frame)
}

// weather answers a canned two-day forecast. The wire keys "forcast" and
// "mositure" are the firmware's spelling and must not be corrected.
func (h *Handlers) weather(_ context.Context, dev *storage.Device, _ protocol.ParsedMessage) Result {
	if dev == nil {
		return Failure()
	}

	now := time.Now()
	data := protocol.WeatherData{
		Info: protocol.WeatherInfo{
			AQ:      "优",
			Icon:    "qing",
			PM25:    30,
			TempNow: 25,
			Title:   "今天天气不错！",
			Weather: "晴",
			Wind:    "微风",
		},
		Forcast: []protocol.WeatherForecast{
			{Date: now.Format("01.02"), Icon: "qing", TempHigh: 28, TempLow: 18},
			{Date: now.AddDate(0, 0, 1).Format("01.02"), Icon: "duoyun", TempHigh: 29, TempLow: 19},
		},
		Life: protocol.WeatherLife{
			CY:      "适宜",
			CYDesc:  "适合穿衣",
			DL:      "适宜",
			DLDesc:  "适合锻炼",
			GM:      "感冒",
			GMDesc:  "不易感冒",
			ZWX:     "中等",
			ZWXDesc: "紫外线中等",
		},
	}

	frame, err := protocol.BuildFrame(protocol.MsgTypeGeneral, protocol.GeneralResponse{
		Status:  1,
		SubType: protocol.SubTypeWeather,
		UserID:  dev.UDID,
		Data:    data,
	})
	if err != nil {
		return Failure()
	}
	return Reply(frame)
}

// apps acknowledges the app-list probe; no list is served.
func (h *Handlers) apps(_ context.Context, dev *storage.Device, _ protocol.ParsedMessage) Result {
	if dev == nil {
		return Failure()
	}
	frame, err := protocol.BuildFrame(protocol.MsgTypeGeneral, protocol.GeneralResponse{
		Status:  1,
		SubType: protocol.SubTypeApps,
	})
	if err != nil {
		return Failure()
	}
	return Reply(frame)
}
