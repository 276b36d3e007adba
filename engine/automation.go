package engine

import (
	"context"
	"strings"

	"github.com/hctoledo/wachannel/domains/chatstorage"
	"github.com/sirupsen/logrus"
)

// AutomationEngine matches inbound message text against the owner's active
// keyword rules.
type AutomationEngine struct {
	repo chatstorage.IChatStorageRepository
}

func NewAutomationEngine(repo chatstorage.IChatStorageRepository) *AutomationEngine {
	return &AutomationEngine{repo: repo}
}

// Evaluate returns the first active rule whose keyword appears in the text,
// case-insensitively. Rules bound to a different session are skipped. A nil
// result means no rule matched.
func (e *AutomationEngine) Evaluate(ctx context.Context, userID, sessionID, text string) (*chatstorage.AutomationRule, error) {
	rules, err := e.repo.GetActiveRulesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	lowerText := strings.ToLower(text)
	for _, rule := range rules {
		if rule.SessionID != "" && rule.SessionID != sessionID {
			continue
		}
		if rule.Keyword == "" {
			continue
		}
		if strings.Contains(lowerText, strings.ToLower(rule.Keyword)) {
			logrus.Debugf("[AUTOMATION] Rule %s matched keyword %q for session %s", rule.ID, rule.Keyword, sessionID)
			return rule, nil
		}
	}
	return nil, nil
}
