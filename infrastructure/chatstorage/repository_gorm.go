package chatstorage

import (
	"context"
	"time"

	"github.com/hctoledo/wachannel/domains/chatstorage"
	pkgError "github.com/hctoledo/wachannel/pkg/error"
	"gorm.io/gorm"
)

// --- Persistence Models ---

type sessionModel struct {
	ID          string    `gorm:"primaryKey;column:id"`
	UserID      string    `gorm:"column:user_id;not null;index"`
	Status      string    `gorm:"column:status;not null;default:'connecting'"`
	PhoneNumber string    `gorm:"column:phone_number"`
	QRCode      string    `gorm:"column:qr_code;type:text"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null"`
}

func (sessionModel) TableName() string { return "sessions" }

type conversationModel struct {
	ID              string    `gorm:"primaryKey;column:id"`
	SessionID       string    `gorm:"column:session_id;not null;index;uniqueIndex:idx_session_contact"`
	ContactName     string    `gorm:"column:contact_name"`
	ContactNumber   string    `gorm:"column:contact_number;not null;uniqueIndex:idx_session_contact"`
	LastMessage     string    `gorm:"column:last_message;type:text"`
	LastMessageTime time.Time `gorm:"column:last_message_time"`
	UnreadCount     int       `gorm:"column:unread_count;default:0"`
	CreatedAt       time.Time `gorm:"column:created_at;not null"`
	UpdatedAt       time.Time `gorm:"column:updated_at;not null"`
}

func (conversationModel) TableName() string { return "conversations" }

type messageModel struct {
	ID             string    `gorm:"primaryKey;column:id"`
	ConversationID string    `gorm:"column:conversation_id;not null;index"`
	Content        string    `gorm:"column:content;type:text"`
	FromMe         bool      `gorm:"column:from_me;default:false"`
	Status         string    `gorm:"column:status;default:'delivered'"`
	Timestamp      time.Time `gorm:"column:timestamp;not null;index"`
}

func (messageModel) TableName() string { return "messages" }

type automationRuleModel struct {
	ID        string    `gorm:"primaryKey;column:id"`
	UserID    string    `gorm:"column:user_id;not null;index"`
	SessionID string    `gorm:"column:session_id"`
	Keyword   string    `gorm:"column:keyword;not null"`
	Response  string    `gorm:"column:response;type:text"`
	Active    bool      `gorm:"column:active;default:true"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (automationRuleModel) TableName() string { return "automation_rules" }

// --- Converters ---

func toSessionModel(s *chatstorage.Session) sessionModel {
	return sessionModel{
		ID:          s.ID,
		UserID:      s.UserID,
		Status:      string(s.Status),
		PhoneNumber: s.PhoneNumber,
		QRCode:      s.QRCode,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

func fromSessionModel(m sessionModel) *chatstorage.Session {
	return &chatstorage.Session{
		ID:          m.ID,
		UserID:      m.UserID,
		Status:      chatstorage.SessionStatus(m.Status),
		PhoneNumber: m.PhoneNumber,
		QRCode:      m.QRCode,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func toConversationModel(c *chatstorage.Conversation) conversationModel {
	return conversationModel{
		ID:              c.ID,
		SessionID:       c.SessionID,
		ContactName:     c.ContactName,
		ContactNumber:   c.ContactNumber,
		LastMessage:     c.LastMessage,
		LastMessageTime: c.LastMessageTime,
		UnreadCount:     c.UnreadCount,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

func fromConversationModel(m conversationModel) *chatstorage.Conversation {
	return &chatstorage.Conversation{
		ID:              m.ID,
		SessionID:       m.SessionID,
		ContactName:     m.ContactName,
		ContactNumber:   m.ContactNumber,
		LastMessage:     m.LastMessage,
		LastMessageTime: m.LastMessageTime,
		UnreadCount:     m.UnreadCount,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func toMessageModel(msg *chatstorage.Message) messageModel {
	return messageModel{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		Content:        msg.Content,
		FromMe:         msg.FromMe,
		Status:         string(msg.Status),
		Timestamp:      msg.Timestamp,
	}
}

func fromMessageModel(m messageModel) *chatstorage.Message {
	return &chatstorage.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Content:        m.Content,
		FromMe:         m.FromMe,
		Status:         chatstorage.MessageStatus(m.Status),
		Timestamp:      m.Timestamp,
	}
}

func toRuleModel(r *chatstorage.AutomationRule) automationRuleModel {
	return automationRuleModel{
		ID:        r.ID,
		UserID:    r.UserID,
		SessionID: r.SessionID,
		Keyword:   r.Keyword,
		Response:  r.Response,
		Active:    r.Active,
		CreatedAt: r.CreatedAt,
	}
}

func fromRuleModel(m automationRuleModel) *chatstorage.AutomationRule {
	return &chatstorage.AutomationRule{
		ID:        m.ID,
		UserID:    m.UserID,
		SessionID: m.SessionID,
		Keyword:   m.Keyword,
		Response:  m.Response,
		Active:    m.Active,
		CreatedAt: m.CreatedAt,
	}
}

// --- Repository Implementation ---

type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) Init() error {
	return r.db.AutoMigrate(
		&sessionModel{},
		&conversationModel{},
		&messageModel{},
		&automationRuleModel{},
	)
}

// Sessions

func (r *GormRepository) CreateSession(ctx context.Context, session *chatstorage.Session) error {
	model := toSessionModel(session)
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *GormRepository) GetSession(ctx context.Context, sessionID string) (*chatstorage.Session, error) {
	var m sessionModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", sessionID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgError.ErrSessionNotFound
		}
		return nil, err
	}
	return fromSessionModel(m), nil
}

func (r *GormRepository) GetSessionsByUser(ctx context.Context, userID string) ([]*chatstorage.Session, error) {
	var models []sessionModel
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]*chatstorage.Session, len(models))
	for i, m := range models {
		res[i] = fromSessionModel(m)
	}
	return res, nil
}

func (r *GormRepository) GetActiveSessions(ctx context.Context) ([]*chatstorage.Session, error) {
	var models []sessionModel
	if err := r.db.WithContext(ctx).Where("status <> ?", string(chatstorage.StatusDisconnected)).Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]*chatstorage.Session, len(models))
	for i, m := range models {
		res[i] = fromSessionModel(m)
	}
	return res, nil
}

func (r *GormRepository) UpdateSession(ctx context.Context, sessionID string, patch chatstorage.SessionPatch) error {
	updates := map[string]any{"updated_at": time.Now().UTC()}
	if patch.Status != nil {
		updates["status"] = string(*patch.Status)
	}
	if patch.PhoneNumber != nil {
		updates["phone_number"] = *patch.PhoneNumber
	}
	if patch.QRCode != nil {
		updates["qr_code"] = *patch.QRCode
	}
	result := r.db.WithContext(ctx).Model(&sessionModel{}).Where("id = ?", sessionID).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgError.ErrSessionNotFound
	}
	return nil
}

func (r *GormRepository) DeleteSession(ctx context.Context, sessionID string) error {
	return r.db.WithContext(ctx).Delete(&sessionModel{}, "id = ?", sessionID).Error
}

// Conversations

func (r *GormRepository) CreateConversation(ctx context.Context, conversation *chatstorage.Conversation) error {
	model := toConversationModel(conversation)
	now := time.Now().UTC()
	if model.CreatedAt.IsZero() {
		model.CreatedAt = now
	}
	if model.UpdatedAt.IsZero() {
		model.UpdatedAt = now
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *GormRepository) GetConversationsBySession(ctx context.Context, sessionID string) ([]*chatstorage.Conversation, error) {
	var models []conversationModel
	if err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("last_message_time DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]*chatstorage.Conversation, len(models))
	for i, m := range models {
		res[i] = fromConversationModel(m)
	}
	return res, nil
}

func (r *GormRepository) UpdateConversation(ctx context.Context, conversationID string, patch chatstorage.ConversationPatch) error {
	updates := map[string]any{"updated_at": time.Now().UTC()}
	if patch.ContactName != nil {
		updates["contact_name"] = *patch.ContactName
	}
	if patch.LastMessage != nil {
		updates["last_message"] = *patch.LastMessage
	}
	if patch.LastMessageTime != nil {
		updates["last_message_time"] = *patch.LastMessageTime
	}
	if patch.UnreadCount != nil {
		updates["unread_count"] = *patch.UnreadCount
	}
	result := r.db.WithContext(ctx).Model(&conversationModel{}).Where("id = ?", conversationID).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgError.ErrConversationNotFound
	}
	return nil
}

// Messages

func (r *GormRepository) AppendMessage(ctx context.Context, message *chatstorage.Message) error {
	model := toMessageModel(message)
	if model.Timestamp.IsZero() {
		model.Timestamp = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *GormRepository) GetMessagesByConversation(ctx context.Context, conversationID string, limit int) ([]*chatstorage.Message, error) {
	query := r.db.WithContext(ctx).Where("conversation_id = ?", conversationID).Order("timestamp ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var models []messageModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]*chatstorage.Message, len(models))
	for i, m := range models {
		res[i] = fromMessageModel(m)
	}
	return res, nil
}

// Automation Rules

func (r *GormRepository) CreateRule(ctx context.Context, rule *chatstorage.AutomationRule) error {
	model := toRuleModel(rule)
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

// GetActiveRulesByUser orders by creation time so first-match evaluation
// stays deterministic across stores.
func (r *GormRepository) GetActiveRulesByUser(ctx context.Context, userID string) ([]*chatstorage.AutomationRule, error) {
	var models []automationRuleModel
	if err := r.db.WithContext(ctx).Where("user_id = ? AND active = ?", userID, true).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]*chatstorage.AutomationRule, len(models))
	for i, m := range models {
		res[i] = fromRuleModel(m)
	}
	return res, nil
}
