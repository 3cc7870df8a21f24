package storage

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store. All methods are safe for concurrent
// use. Data does not survive a restart; it exists for tests and for
// standalone lab deployments where persistence is not needed.
type MemoryStore struct {
	mu sync.RWMutex

	devices     map[string]*Device            // udid -> device
	contacts    map[string]map[int64]*Contact // udid -> user_id -> contact
	packages    []LocationPackage
	points      map[string][]LocationPoint // msg_id -> ordered points
	callRecords map[int64]*CallRecord      // record_id -> record
	chatLogs    map[string]*ChatLog        // message_id -> log
	smsMessages []SmsMessage
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		devices:     make(map[string]*Device),
		contacts:    make(map[string]map[int64]*Contact),
		points:      make(map[string][]LocationPoint),
		callRecords: make(map[int64]*CallRecord),
		chatLogs:    make(map[string]*ChatLog),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) GetOrCreateDevice(_ context.Context, udid string, defaults Device) (*Device, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dev, ok := s.devices[udid]; ok {
		clone := *dev
		return &clone, false, nil
	}

	dev := defaults
	dev.UDID = udid
	s.devices[udid] = &dev
	clone := dev
	return &clone, true, nil
}

func (s *MemoryStore) UpdateDevice(_ context.Context, dev *Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.devices[dev.UDID]; !ok {
		return ErrNotFound
	}
	clone := *dev
	s.devices[dev.UDID] = &clone
	return nil
}

func (s *MemoryStore) DeviceByUDID(_ context.Context, udid string) (*Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dev, ok := s.devices[udid]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *dev
	return &clone, nil
}

func (s *MemoryStore) DeviceByToken(_ context.Context, token string, babyID int64) (*Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, dev := range s.devices {
		if dev.HTTPToken == token && dev.BabyID == babyID {
			clone := *dev
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) CreateLocationPackage(_ context.Context, pkg LocationPackage, points []LocationPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.packages = append(s.packages, pkg)
	s.points[pkg.MsgID] = append(s.points[pkg.MsgID], points...)
	return nil
}

// LocationPoints returns the stored points of a package in upload order.
func (s *MemoryStore) LocationPoints(msgID string) []LocationPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]LocationPoint(nil), s.points[msgID]...)
}

// LocationPackageCount reports the number of stored packages.
func (s *MemoryStore) LocationPackageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.packages)
}

func (s *MemoryStore) UpsertCallRecord(_ context.Context, rec CallRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.callRecords[rec.RecordID]
	clone := rec
	s.callRecords[rec.RecordID] = &clone
	return !exists, nil
}

// CallRecordCount reports the number of stored call records.
func (s *MemoryStore) CallRecordCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.callRecords)
}

func (s *MemoryStore) CreateSmsMessage(_ context.Context, sms SmsMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.smsMessages = append(s.smsMessages, sms)
	return nil
}

// SmsCount reports the number of stored SMS messages.
func (s *MemoryStore) SmsCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.smsMessages)
}

func (s *MemoryStore) ChatLogExists(_ context.Context, udid, messageID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log, ok := s.chatLogs[messageID]
	return ok && log.DeviceUDID == udid, nil
}

func (s *MemoryStore) CreateChatLog(_ context.Context, log ChatLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chatLogs[log.MessageID]; ok {
		return ErrDuplicate
	}
	clone := log
	s.chatLogs[log.MessageID] = &clone
	return nil
}

// ChatLogCount reports the number of stored chat logs.
func (s *MemoryStore) ChatLogCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chatLogs)
}

func (s *MemoryStore) ContactsByDevice(_ context.Context, udid string) ([]Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Contact
	for _, c := range s.contacts[udid] {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Spell != out[j].Spell {
			return out[i].Spell < out[j].Spell
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *MemoryStore) ContactByUserID(_ context.Context, udid string, userID int64) (*Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.contacts[udid][userID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *c
	return &clone, nil
}

func (s *MemoryStore) ContactExistsByPhone(_ context.Context, udid, phone string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.contacts[udid] {
		if c.Phone == phone {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) CreateContact(_ context.Context, c Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	peers, ok := s.contacts[c.DeviceUDID]
	if !ok {
		peers = make(map[int64]*Contact)
		s.contacts[c.DeviceUDID] = peers
	}
	if _, ok := peers[c.UserID]; ok {
		return ErrDuplicate
	}
	clone := c
	peers[c.UserID] = &clone
	return nil
}

func (s *MemoryStore) UpdateContact(_ context.Context, c Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	peers := s.contacts[c.DeviceUDID]
	if _, ok := peers[c.UserID]; !ok {
		return ErrNotFound
	}
	clone := c
	peers[c.UserID] = &clone
	return nil
}

func (s *MemoryStore) DeleteContact(_ context.Context, udid string, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	peers := s.contacts[udid]
	if _, ok := peers[userID]; !ok {
		return ErrNotFound
	}
	delete(peers, userID)
	return nil
}
