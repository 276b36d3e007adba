package engine

import (
	"context"
	"encoding/base64"
	"sync"
	"time"

	"github.com/hctoledo/wachannel/domains/chatstorage"
	"github.com/hctoledo/wachannel/domains/link"
	"github.com/hctoledo/wachannel/pkg/msgworker"
	"github.com/sirupsen/logrus"
	qrcode "github.com/skip2/go-qrcode"
)

// Controller owns the session state machine. It opens device links, reacts
// to their events, schedules reconnects after transient drops and tears
// sessions down on logout or explicit request.
//
// Every attach bumps a per-session generation counter. Events and reconnect
// timers carry the generation they were created under, anything stale is
// ignored, so a torn-down session can never be resurrected by a timer that
// was already in flight.
type Controller struct {
	repo           chatstorage.IChatStorageRepository
	registry       *Registry
	factory        link.Factory
	pool           *msgworker.MessageWorkerPool
	ingestor       *Ingestor
	reconnectDelay time.Duration

	genMu       sync.Mutex
	generations map[string]uint64
}

func NewController(
	repo chatstorage.IChatStorageRepository,
	registry *Registry,
	factory link.Factory,
	pool *msgworker.MessageWorkerPool,
	ingestor *Ingestor,
	reconnectDelay time.Duration,
) *Controller {
	return &Controller{
		repo:           repo,
		registry:       registry,
		factory:        factory,
		pool:           pool,
		ingestor:       ingestor,
		reconnectDelay: reconnectDelay,
		generations:    make(map[string]uint64),
	}
}

// CreateSession persists a new session row and starts linking it. The
// session is observable as connecting until pairing completes.
func (c *Controller) CreateSession(ctx context.Context, sessionID, userID string) error {
	now := time.Now().UTC()
	session := &chatstorage.Session{
		ID:        sessionID,
		UserID:    userID,
		Status:    chatstorage.StatusConnecting,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.repo.CreateSession(ctx, session); err != nil {
		return err
	}
	return c.attach(ctx, sessionID, userID)
}

// DisconnectSession tears a session down for good. The four steps are
// independently fault tolerant, a failing logout must not leave stale
// credentials or a live registry entry behind.
func (c *Controller) DisconnectSession(ctx context.Context, sessionID string) error {
	// Invalidate in-flight events and pending reconnect timers first.
	c.bumpGeneration(sessionID)

	handle, ok := c.registry.Get(sessionID)
	if ok && handle.Link != nil {
		if err := handle.Link.Logout(ctx); err != nil {
			logrus.WithError(err).Warnf("[LIFECYCLE] Session %s: logout failed, continuing teardown", sessionID)
		}
		handle.Link.Terminate()
	}

	status := chatstorage.StatusDisconnected
	empty := ""
	if err := c.repo.UpdateSession(ctx, sessionID, chatstorage.SessionPatch{Status: &status, QRCode: &empty}); err != nil {
		logrus.WithError(err).Errorf("[LIFECYCLE] Session %s: failed to persist disconnected status", sessionID)
	}

	c.registry.Remove(sessionID)

	if err := c.factory.WipeCredentials(sessionID); err != nil {
		logrus.WithError(err).Errorf("[LIFECYCLE] Session %s: failed to remove credentials", sessionID)
	}

	logrus.Infof("[LIFECYCLE] Session %s disconnected", sessionID)
	return nil
}

// GetSessionStatus merges the live registry view with the stored row. The
// registry wins while the session is active, the store is authoritative for
// everything else.
func (c *Controller) GetSessionStatus(ctx context.Context, sessionID string) (*chatstorage.Session, error) {
	session, err := c.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if handle, ok := c.registry.Get(sessionID); ok {
		session.Status = handle.Status
		session.QRCode = handle.QRCode
		if handle.PhoneNumber != "" {
			session.PhoneNumber = handle.PhoneNumber
		}
	}
	return session, nil
}

// Resume re-attaches every session that was not deliberately disconnected.
// Called once on boot so linked devices come back without user action.
func (c *Controller) Resume(ctx context.Context) {
	sessions, err := c.repo.GetActiveSessions(ctx)
	if err != nil {
		logrus.WithError(err).Error("[LIFECYCLE] Failed to load sessions for resume")
		return
	}
	for _, session := range sessions {
		logrus.Infof("[LIFECYCLE] Resuming session %s (last status %s)", session.ID, session.Status)
		if err := c.attach(ctx, session.ID, session.UserID); err != nil {
			logrus.WithError(err).Errorf("[LIFECYCLE] Session %s: resume failed", session.ID)
		}
	}
}

// attach opens a fresh link for the session under a new generation and
// connects it. Transient failures fall into the reconnect path instead of
// bubbling up.
func (c *Controller) attach(ctx context.Context, sessionID, userID string) error {
	gen := c.bumpGeneration(sessionID)

	deviceLink, err := c.factory.Open(ctx, sessionID)
	if err != nil {
		return err
	}

	deviceLink.SetEventHandler(func(evt link.Event) {
		c.handleEvent(sessionID, userID, gen, evt)
	})

	c.registry.Put(&Handle{
		SessionID:  sessionID,
		UserID:     userID,
		Link:       deviceLink,
		Status:     chatstorage.StatusConnecting,
		Generation: gen,
	})

	if err := deviceLink.Connect(ctx); err != nil {
		logrus.WithError(err).Warnf("[LIFECYCLE] Session %s: connect failed, scheduling retry", sessionID)
		c.scheduleReconnect(sessionID, userID, gen)
	}
	return nil
}

func (c *Controller) handleEvent(sessionID, userID string, gen uint64, evt link.Event) {
	if !c.isCurrentGeneration(sessionID, gen) {
		logrus.Debugf("[LIFECYCLE] Session %s: dropping stale event (gen %d)", sessionID, gen)
		return
	}

	switch e := evt.(type) {
	case link.ConnectionEvent:
		c.handleConnectionEvent(sessionID, userID, gen, e)
	case link.MessageEvent:
		c.pool.Dispatch(msgworker.MessageJob{
			SessionID:   sessionID,
			ChatAddress: e.Envelope.RemoteAddress,
			Handler: func(ctx context.Context) error {
				c.ingestor.Ingest(ctx, sessionID, userID, e.Envelope)
				return nil
			},
		})
	}
}

func (c *Controller) handleConnectionEvent(sessionID, userID string, gen uint64, evt link.ConnectionEvent) {
	ctx := context.Background()

	switch evt.State {
	case link.StatePairing:
		c.persistPairingCode(ctx, sessionID, evt.PairingCode)

	case link.StateOpen:
		phone := ""
		if handle, ok := c.registry.Get(sessionID); ok && handle.Link != nil {
			phone = handle.Link.SelfAddress()
		}
		status := chatstorage.StatusConnected
		empty := ""
		patch := chatstorage.SessionPatch{Status: &status, QRCode: &empty}
		if phone != "" {
			patch.PhoneNumber = &phone
		}
		if err := c.repo.UpdateSession(ctx, sessionID, patch); err != nil {
			logrus.WithError(err).Errorf("[LIFECYCLE] Session %s: failed to persist connected status", sessionID)
		}
		c.registry.SetStatus(sessionID, chatstorage.StatusConnected)
		c.registry.SetQRCode(sessionID, "")
		c.registry.SetPhoneNumber(sessionID, phone)
		logrus.Infof("[LIFECYCLE] Session %s connected as %s", sessionID, phone)

	case link.StateClosed:
		if evt.Reason.Terminal() {
			logrus.Infof("[LIFECYCLE] Session %s logged out remotely, not retrying", sessionID)
			c.bumpGeneration(sessionID)
			status := chatstorage.StatusDisconnected
			empty := ""
			if err := c.repo.UpdateSession(ctx, sessionID, chatstorage.SessionPatch{Status: &status, QRCode: &empty}); err != nil {
				logrus.WithError(err).Errorf("[LIFECYCLE] Session %s: failed to persist disconnected status", sessionID)
			}
			if handle, ok := c.registry.Get(sessionID); ok && handle.Link != nil {
				handle.Link.Terminate()
			}
			c.registry.Remove(sessionID)
			if err := c.factory.WipeCredentials(sessionID); err != nil {
				logrus.WithError(err).Errorf("[LIFECYCLE] Session %s: failed to remove credentials", sessionID)
			}
			return
		}

		// Transient drop. Status stays connecting for external readers
		// while the retry loop runs.
		logrus.Warnf("[LIFECYCLE] Session %s closed (%s), reconnecting in %s", sessionID, evt.Reason, c.reconnectDelay)
		status := chatstorage.StatusConnecting
		if err := c.repo.UpdateSession(ctx, sessionID, chatstorage.SessionPatch{Status: &status}); err != nil {
			logrus.WithError(err).Errorf("[LIFECYCLE] Session %s: failed to persist connecting status", sessionID)
		}
		c.registry.SetStatus(sessionID, chatstorage.StatusConnecting)
		c.scheduleReconnect(sessionID, userID, gen)
	}
}

// persistPairingCode renders the pairing code as a QR PNG and stores it
// where the API layer can serve it. Failures are confined to this event,
// a broken QR render must not drop the connection attempt.
func (c *Controller) persistPairingCode(ctx context.Context, sessionID, code string) {
	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		logrus.WithError(err).Errorf("[LIFECYCLE] Session %s: failed to encode pairing QR", sessionID)
		return
	}
	dataURI := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)

	c.registry.SetQRCode(sessionID, dataURI)
	if err := c.repo.UpdateSession(ctx, sessionID, chatstorage.SessionPatch{QRCode: &dataURI}); err != nil {
		logrus.WithError(err).Errorf("[LIFECYCLE] Session %s: failed to persist pairing QR", sessionID)
	}
	logrus.Infof("[LIFECYCLE] Session %s: pairing QR ready", sessionID)
}

// scheduleReconnect arms the fixed-delay retry. The timer checks the
// generation when it fires so teardown in the meantime wins.
func (c *Controller) scheduleReconnect(sessionID, userID string, gen uint64) {
	time.AfterFunc(c.reconnectDelay, func() {
		if !c.isCurrentGeneration(sessionID, gen) {
			logrus.Debugf("[LIFECYCLE] Session %s: reconnect timer is stale (gen %d), dropping", sessionID, gen)
			return
		}

		ctx := context.Background()

		// The session row may have been removed while the timer was
		// pending. Recreate it so the retry behaves like a fresh create.
		if _, err := c.repo.GetSession(ctx, sessionID); err != nil {
			logrus.Warnf("[LIFECYCLE] Session %s: row missing on reconnect, recreating", sessionID)
			now := time.Now().UTC()
			recreated := &chatstorage.Session{
				ID:        sessionID,
				UserID:    userID,
				Status:    chatstorage.StatusConnecting,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := c.repo.CreateSession(ctx, recreated); err != nil {
				logrus.WithError(err).Errorf("[LIFECYCLE] Session %s: failed to recreate row, abandoning reconnect", sessionID)
				return
			}
		}

		logrus.Infof("[LIFECYCLE] Session %s: reconnecting", sessionID)
		if err := c.attach(ctx, sessionID, userID); err != nil {
			logrus.WithError(err).Errorf("[LIFECYCLE] Session %s: reconnect failed", sessionID)
		}
	})
}

func (c *Controller) bumpGeneration(sessionID string) uint64 {
	c.genMu.Lock()
	defer c.genMu.Unlock()
	c.generations[sessionID]++
	return c.generations[sessionID]
}

func (c *Controller) isCurrentGeneration(sessionID string, gen uint64) bool {
	c.genMu.Lock()
	defer c.genMu.Unlock()
	return c.generations[sessionID] == gen
}
