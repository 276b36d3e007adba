package engine

import (
	"context"
	"strings"

	"github.com/hctoledo/wachannel/domains/chatstorage"
	"github.com/sirupsen/logrus"
)

// Dispatcher pushes outbound text through the live link of a session.
type Dispatcher struct {
	registry     *Registry
	domainSuffix string
}

func NewDispatcher(registry *Registry, domainSuffix string) *Dispatcher {
	return &Dispatcher{registry: registry, domainSuffix: domainSuffix}
}

// Send delivers text to a contact through the session's link and reports
// whether delivery was handed off. Bare phone numbers get the default
// domain suffix appended, addresses that already carry a domain pass
// through unchanged.
func (d *Dispatcher) Send(ctx context.Context, sessionID, contact, text string) bool {
	handle, ok := d.registry.Get(sessionID)
	if !ok {
		logrus.Warnf("[DISPATCH] Session %s not registered, dropping outbound message", sessionID)
		return false
	}
	if handle.Status != chatstorage.StatusConnected || handle.Link == nil {
		logrus.Warnf("[DISPATCH] Session %s is %s, dropping outbound message", sessionID, handle.Status)
		return false
	}

	address := contact
	if !strings.Contains(address, "@") {
		address += d.domainSuffix
	}

	if err := handle.Link.Send(ctx, address, text); err != nil {
		logrus.WithError(err).Errorf("[DISPATCH] Send failed for session %s to %s", sessionID, address)
		return false
	}
	return true
}
