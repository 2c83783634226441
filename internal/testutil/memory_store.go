package testutil

import (
	"context"
	"fmt"
	"sync"

	"feedback-bot/internal/common/errors"
	"feedback-bot/internal/storage"
)

type memoryCard struct {
	ownerID          string
	conversationName string
	reportID         *string
	entries          []*storage.Entry
}

// MemoryStore is an in-memory storage.FeedbackStore with error injection
// and per-method call counting.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*storage.User
	cards map[string]*memoryCard
	calls map[string]int

	// ErrorOnMethod makes the named method fail with the given error
	ErrorOnMethod map[string]error
}

var _ storage.FeedbackStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]*storage.User),
		cards:         make(map[string]*memoryCard),
		calls:         make(map[string]int),
		ErrorOnMethod: make(map[string]error),
	}
}

// FailOn sets or, with a nil err, clears the injected error for method
func (m *MemoryStore) FailOn(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.ErrorOnMethod, method)
		return
	}
	m.ErrorOnMethod[method] = err
}

// Calls returns how many times method was invoked, failed calls included
func (m *MemoryStore) Calls(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[method]
}

// enter records the call and returns the injected error; the caller holds mu
func (m *MemoryStore) enter(method string) error {
	m.calls[method]++
	return m.ErrorOnMethod[method]
}

func (m *MemoryStore) CreateUser(_ context.Context, id, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CreateUser"); err != nil {
		return err
	}
	m.createUser(id, name)
	return nil
}

func (m *MemoryStore) createUser(id, name string) {
	if _, exists := m.users[id]; !exists {
		m.users[id] = &storage.User{ID: id, Name: name}
	}
}

func (m *MemoryStore) CreateFeedbackCard(_ context.Context, ownerID, cardID, conversationName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CreateFeedbackCard"); err != nil {
		return err
	}
	return m.createCard(ownerID, cardID, conversationName)
}

func (m *MemoryStore) createCard(ownerID, cardID, conversationName string) error {
	if _, exists := m.cards[cardID]; exists {
		return errors.ConflictError(fmt.Sprintf("feedback card %s already exists", cardID))
	}
	if _, exists := m.users[ownerID]; !exists {
		return errors.NotFoundError(fmt.Sprintf("user %s", ownerID))
	}
	m.cards[cardID] = &memoryCard{ownerID: ownerID, conversationName: conversationName}
	return nil
}

func (m *MemoryStore) RegisterFeedbackCard(_ context.Context, ownerID, ownerName, cardID, conversationName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("RegisterFeedbackCard"); err != nil {
		return err
	}
	if _, exists := m.cards[cardID]; exists {
		return errors.ConflictError(fmt.Sprintf("feedback card %s already exists", cardID))
	}
	m.createUser(ownerID, ownerName)
	return m.createCard(ownerID, cardID, conversationName)
}

func (m *MemoryStore) GetFeedbackMetadata(_ context.Context, cardID string) (*storage.FeedbackMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetFeedbackMetadata"); err != nil {
		return nil, err
	}
	card, exists := m.cards[cardID]
	if !exists {
		return nil, errors.NotFoundError(fmt.Sprintf("feedback card %s", cardID))
	}
	return &storage.FeedbackMetadata{
		CardID:           cardID,
		OwnerID:          card.ownerID,
		ConversationID:   copyString(m.users[card.ownerID].ConversationID),
		ReportID:         copyString(card.reportID),
		ConversationName: card.conversationName,
	}, nil
}

func (m *MemoryStore) GetUserConversation(_ context.Context, userID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetUserConversation"); err != nil {
		return "", false, err
	}
	user, exists := m.users[userID]
	if !exists {
		return "", false, errors.NotFoundError(fmt.Sprintf("user %s", userID))
	}
	if user.ConversationID == nil {
		return "", false, nil
	}
	return *user.ConversationID, true, nil
}

func (m *MemoryStore) UpsertEntry(_ context.Context, cardID, userID string, rating int, comment *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("UpsertEntry"); err != nil {
		return err
	}
	card, cardExists := m.cards[cardID]
	_, userExists := m.users[userID]
	if !cardExists || !userExists {
		return errors.NotFoundError(fmt.Sprintf("feedback card %s or user %s", cardID, userID))
	}

	for _, entry := range card.entries {
		if entry.UserID == userID {
			entry.Rating = rating
			entry.Comment = copyString(comment)
			return nil
		}
	}
	card.entries = append(card.entries, &storage.Entry{
		CardID:  cardID,
		UserID:  userID,
		Rating:  rating,
		Comment: copyString(comment),
	})
	return nil
}

func (m *MemoryStore) ListEntries(_ context.Context, cardID string) ([]storage.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListEntries"); err != nil {
		return nil, err
	}
	card, exists := m.cards[cardID]
	if !exists {
		return nil, nil
	}
	entries := make([]storage.Entry, 0, len(card.entries))
	for _, entry := range card.entries {
		e := *entry
		e.Comment = copyString(entry.Comment)
		e.ConversationName = card.conversationName
		entries = append(entries, e)
	}
	return entries, nil
}

func (m *MemoryStore) SetReportID(_ context.Context, cardID, reportID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("SetReportID"); err != nil {
		return err
	}
	card, exists := m.cards[cardID]
	if !exists {
		return errors.NotFoundError(fmt.Sprintf("feedback card %s", cardID))
	}
	switch {
	case card.reportID == nil:
		card.reportID = &reportID
		return nil
	case *card.reportID == reportID:
		return nil
	default:
		return errors.ConflictError(fmt.Sprintf("feedback card %s already has report %s", cardID, *card.reportID)).
			WithContext("report_id", *card.reportID)
	}
}

func (m *MemoryStore) SetUserConversation(_ context.Context, userID, conversationID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("SetUserConversation"); err != nil {
		return "", err
	}
	user, exists := m.users[userID]
	if !exists {
		return "", errors.NotFoundError(fmt.Sprintf("user %s", userID))
	}
	if user.ConversationID == nil {
		user.ConversationID = &conversationID
	}
	return *user.ConversationID, nil
}

func (m *MemoryStore) Ping(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enter("Ping")
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enter("Close")
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
