package engine

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hctoledo/wachannel/domains/chatstorage"
	"github.com/hctoledo/wachannel/domains/link"
	"github.com/sirupsen/logrus"
)

// Ingestor records messages flowing over a session's link and triggers
// keyword automation for inbound traffic. Storage failures are logged and
// absorbed, the event loop must never stall on a bad write.
type Ingestor struct {
	repo       chatstorage.IChatStorageRepository
	automation *AutomationEngine
	dispatcher *Dispatcher
}

func NewIngestor(repo chatstorage.IChatStorageRepository, automation *AutomationEngine, dispatcher *Dispatcher) *Ingestor {
	return &Ingestor{repo: repo, automation: automation, dispatcher: dispatcher}
}

// Ingest stores one envelope for the session. Conversation create is
// idempotent under concurrent ingestion of the same contact, the loser of
// the create race re-reads and reuses the winner's row.
func (i *Ingestor) Ingest(ctx context.Context, sessionID, userID string, env link.Envelope) {
	if env.RemoteAddress == "" {
		logrus.Warnf("[INGEST] Session %s: envelope without remote address, skipping", sessionID)
		return
	}

	contact := env.RemoteAddress
	if idx := strings.Index(contact, "@"); idx >= 0 {
		contact = contact[:idx]
	}
	name := env.PushName
	if name == "" {
		name = contact
	}

	text := Normalize(env.Content)

	timestamp := env.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	conversation := i.resolveConversation(ctx, sessionID, contact, name, text, timestamp, env.FromSelf)

	if conversation != nil {
		status := chatstorage.MessageDelivered
		if env.FromSelf {
			status = chatstorage.MessageSent
		}
		message := &chatstorage.Message{
			ID:             uuid.NewString(),
			ConversationID: conversation.ID,
			Content:        text,
			FromMe:         env.FromSelf,
			Status:         status,
			Timestamp:      timestamp,
		}
		if err := i.repo.AppendMessage(ctx, message); err != nil {
			logrus.WithError(err).Errorf("[INGEST] Session %s: failed to append message for %s", sessionID, contact)
		}
	}

	// Automation only reacts to inbound traffic. Echoes of our own sends
	// must never trigger a reply loop.
	if env.FromSelf || conversation == nil {
		return
	}
	i.runAutomation(ctx, sessionID, userID, contact, text)
}

// resolveConversation finds the conversation for the contact, creating it
// when missing. Returns nil only when both create and the post-race re-read
// fail.
func (i *Ingestor) resolveConversation(ctx context.Context, sessionID, contact, name, text string, timestamp time.Time, fromSelf bool) *chatstorage.Conversation {
	existing := i.findConversation(ctx, sessionID, contact)
	if existing == nil {
		unread := 0
		if !fromSelf {
			unread = 1
		}
		created := &chatstorage.Conversation{
			ID:              uuid.NewString(),
			SessionID:       sessionID,
			ContactName:     name,
			ContactNumber:   contact,
			LastMessage:     text,
			LastMessageTime: timestamp,
			UnreadCount:     unread,
		}
		if err := i.repo.CreateConversation(ctx, created); err == nil {
			return created
		} else {
			// A concurrent ingestion may have created the row first.
			// Re-read and fall through to the update path.
			logrus.WithError(err).Debugf("[INGEST] Session %s: conversation create lost race for %s, re-reading", sessionID, contact)
			existing = i.findConversation(ctx, sessionID, contact)
			if existing == nil {
				logrus.Errorf("[INGEST] Session %s: conversation unavailable for %s, message will not be persisted", sessionID, contact)
				return nil
			}
		}
	}

	patch := chatstorage.ConversationPatch{
		LastMessage:     &text,
		LastMessageTime: &timestamp,
	}
	if !fromSelf {
		unread := existing.UnreadCount + 1
		patch.UnreadCount = &unread
		existing.UnreadCount = unread
	}
	if err := i.repo.UpdateConversation(ctx, existing.ID, patch); err != nil {
		logrus.WithError(err).Errorf("[INGEST] Session %s: failed to update conversation %s", sessionID, existing.ID)
	}
	existing.LastMessage = text
	existing.LastMessageTime = timestamp
	return existing
}

func (i *Ingestor) findConversation(ctx context.Context, sessionID, contact string) *chatstorage.Conversation {
	conversations, err := i.repo.GetConversationsBySession(ctx, sessionID)
	if err != nil {
		logrus.WithError(err).Errorf("[INGEST] Session %s: failed to list conversations", sessionID)
		return nil
	}
	for _, conversation := range conversations {
		if conversation.ContactNumber == contact {
			return conversation
		}
	}
	return nil
}

func (i *Ingestor) runAutomation(ctx context.Context, sessionID, userID, contact, text string) {
	rule, err := i.automation.Evaluate(ctx, userID, sessionID, text)
	if err != nil {
		logrus.WithError(err).Errorf("[INGEST] Session %s: automation evaluation failed", sessionID)
		return
	}
	if rule == nil {
		return
	}

	logrus.Infof("[AUTOMATION] Session %s: rule %s firing for contact %s", sessionID, rule.ID, contact)
	if !i.dispatcher.Send(ctx, sessionID, contact, rule.Response) {
		logrus.Warnf("[AUTOMATION] Session %s: auto-reply to %s was not delivered", sessionID, contact)
		return
	}

	// Record the auto-reply like any other outbound message so the
	// conversation history stays complete. FromSelf blocks re-triggering.
	i.Ingest(ctx, sessionID, userID, link.Envelope{
		RemoteAddress: contact,
		FromSelf:      true,
		Timestamp:     time.Now().UTC(),
		Content:       link.Content{Kind: link.KindText, Text: rule.Response},
	})
}
