package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/hctoledo/wachannel/domains/chatstorage"
	"github.com/hctoledo/wachannel/domains/link"
)

// fakeRepo is an in-memory IChatStorageRepository enforcing the same
// uniqueness the real store does for (session, contact) pairs.
type fakeRepo struct {
	mu            sync.Mutex
	sessions      map[string]*chatstorage.Session
	conversations map[string]*chatstorage.Conversation
	messages      []*chatstorage.Message
	rules         []*chatstorage.AutomationRule

	createConversationErr error
	appendMessageErr      error
	updateSessionErr      error

	// onListConversations runs inside GetConversationsBySession before the
	// scan, letting tests force two ingestions to interleave.
	onListConversations func()
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		sessions:      make(map[string]*chatstorage.Session),
		conversations: make(map[string]*chatstorage.Conversation),
	}
}

func (f *fakeRepo) Init() error { return nil }

func (f *fakeRepo) CreateSession(ctx context.Context, session *chatstorage.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[session.ID]; ok {
		return errors.New("session already exists")
	}
	cp := *session
	f.sessions[session.ID] = &cp
	return nil
}

func (f *fakeRepo) GetSession(ctx context.Context, sessionID string) (*chatstorage.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[sessionID]
	if !ok {
		return nil, errors.New("session not found")
	}
	cp := *session
	return &cp, nil
}

func (f *fakeRepo) GetSessionsByUser(ctx context.Context, userID string) ([]*chatstorage.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*chatstorage.Session
	for _, session := range f.sessions {
		if session.UserID == userID {
			cp := *session
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetActiveSessions(ctx context.Context) ([]*chatstorage.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*chatstorage.Session
	for _, session := range f.sessions {
		if session.Status != chatstorage.StatusDisconnected {
			cp := *session
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeRepo) UpdateSession(ctx context.Context, sessionID string, patch chatstorage.SessionPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateSessionErr != nil {
		return f.updateSessionErr
	}
	session, ok := f.sessions[sessionID]
	if !ok {
		return errors.New("session not found")
	}
	if patch.Status != nil {
		session.Status = *patch.Status
	}
	if patch.PhoneNumber != nil {
		session.PhoneNumber = *patch.PhoneNumber
	}
	if patch.QRCode != nil {
		session.QRCode = *patch.QRCode
	}
	return nil
}

func (f *fakeRepo) DeleteSession(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, sessionID)
	return nil
}

func (f *fakeRepo) CreateConversation(ctx context.Context, conversation *chatstorage.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createConversationErr != nil {
		return f.createConversationErr
	}
	for _, existing := range f.conversations {
		if existing.SessionID == conversation.SessionID && existing.ContactNumber == conversation.ContactNumber {
			return errors.New("conversation already exists")
		}
	}
	cp := *conversation
	f.conversations[conversation.ID] = &cp
	return nil
}

func (f *fakeRepo) GetConversationsBySession(ctx context.Context, sessionID string) ([]*chatstorage.Conversation, error) {
	if f.onListConversations != nil {
		f.onListConversations()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*chatstorage.Conversation
	for _, conversation := range f.conversations {
		if conversation.SessionID == sessionID {
			cp := *conversation
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeRepo) UpdateConversation(ctx context.Context, conversationID string, patch chatstorage.ConversationPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	conversation, ok := f.conversations[conversationID]
	if !ok {
		return errors.New("conversation not found")
	}
	if patch.ContactName != nil {
		conversation.ContactName = *patch.ContactName
	}
	if patch.LastMessage != nil {
		conversation.LastMessage = *patch.LastMessage
	}
	if patch.LastMessageTime != nil {
		conversation.LastMessageTime = *patch.LastMessageTime
	}
	if patch.UnreadCount != nil {
		conversation.UnreadCount = *patch.UnreadCount
	}
	return nil
}

func (f *fakeRepo) AppendMessage(ctx context.Context, message *chatstorage.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendMessageErr != nil {
		return f.appendMessageErr
	}
	cp := *message
	f.messages = append(f.messages, &cp)
	return nil
}

func (f *fakeRepo) GetMessagesByConversation(ctx context.Context, conversationID string, limit int) ([]*chatstorage.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*chatstorage.Message
	for _, message := range f.messages {
		if message.ConversationID == conversationID {
			cp := *message
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeRepo) CreateRule(ctx context.Context, rule *chatstorage.AutomationRule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *rule
	f.rules = append(f.rules, &cp)
	return nil
}

func (f *fakeRepo) GetActiveRulesByUser(ctx context.Context, userID string) ([]*chatstorage.AutomationRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*chatstorage.AutomationRule
	for _, rule := range f.rules {
		if rule.UserID == userID && rule.Active {
			cp := *rule
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeRepo) conversationList() []*chatstorage.Conversation {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*chatstorage.Conversation
	for _, conversation := range f.conversations {
		cp := *conversation
		out = append(out, &cp)
	}
	return out
}

func (f *fakeRepo) messageList() []*chatstorage.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*chatstorage.Message, 0, len(f.messages))
	for _, message := range f.messages {
		cp := *message
		out = append(out, &cp)
	}
	return out
}

type sentMessage struct {
	Address string
	Text    string
}

// fakeLink is a scriptable DeviceLink.
type fakeLink struct {
	mu         sync.Mutex
	handler    link.EventHandler
	sent       []sentMessage
	sendErr    error
	logoutErr  error
	connectErr error
	terminated int
	logouts    int
	self       string
}

func (f *fakeLink) SetEventHandler(handler link.EventHandler) {
	f.mu.Lock()
	f.handler = handler
	f.mu.Unlock()
}

func (f *fakeLink) Connect(ctx context.Context) error { return f.connectErr }

func (f *fakeLink) Send(ctx context.Context, address, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentMessage{Address: address, Text: text})
	return nil
}

func (f *fakeLink) Logout(ctx context.Context) error {
	f.mu.Lock()
	f.logouts++
	f.mu.Unlock()
	return f.logoutErr
}

func (f *fakeLink) Terminate() {
	f.mu.Lock()
	f.terminated++
	f.mu.Unlock()
}

func (f *fakeLink) SelfAddress() string { return f.self }

func (f *fakeLink) emit(evt link.Event) {
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()
	if handler != nil {
		handler(evt)
	}
}

func (f *fakeLink) sentList() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

// fakeFactory hands out pre-built links in order and records wipes.
type fakeFactory struct {
	mu     sync.Mutex
	links  []*fakeLink
	opened int
	wipes  []string
}

func (f *fakeFactory) Open(ctx context.Context, sessionID string) (link.DeviceLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.opened >= len(f.links) {
		// Keep producing fresh links for unbounded reconnect tests.
		f.links = append(f.links, &fakeLink{})
	}
	deviceLink := f.links[f.opened]
	f.opened++
	return deviceLink, nil
}

func (f *fakeFactory) WipeCredentials(sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wipes = append(f.wipes, sessionID)
	return nil
}

func (f *fakeFactory) openedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened
}

func (f *fakeFactory) wipeList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.wipes))
	copy(out, f.wipes)
	return out
}

func (f *fakeFactory) linkAt(i int) *fakeLink {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i < len(f.links) {
		return f.links[i]
	}
	return nil
}
