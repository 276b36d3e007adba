package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hctoledo/wachannel/domains/chatstorage"
	"github.com/hctoledo/wachannel/domains/link"
	"github.com/hctoledo/wachannel/pkg/msgworker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lifecycleFixture struct {
	repo       *fakeRepo
	registry   *Registry
	factory    *fakeFactory
	pool       *msgworker.MessageWorkerPool
	controller *Controller
	cancel     context.CancelFunc
}

func newLifecycleFixture(t *testing.T, reconnectDelay time.Duration) *lifecycleFixture {
	t.Helper()

	repo := newFakeRepo()
	registry := NewRegistry()
	factory := &fakeFactory{}
	pool := msgworker.NewMessageWorkerPool(2, 50)

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	t.Cleanup(func() {
		cancel()
		pool.Stop()
	})

	automation := NewAutomationEngine(repo)
	dispatcher := NewDispatcher(registry, "@s.whatsapp.net")
	ingestor := NewIngestor(repo, automation, dispatcher)
	controller := NewController(repo, registry, factory, pool, ingestor, reconnectDelay)

	return &lifecycleFixture{
		repo:       repo,
		registry:   registry,
		factory:    factory,
		pool:       pool,
		controller: controller,
		cancel:     cancel,
	}
}

func TestLifecycle_CreateSessionStartsConnecting(t *testing.T) {
	fx := newLifecycleFixture(t, 20*time.Millisecond)

	err := fx.controller.CreateSession(context.Background(), "sess1", "user1")
	require.NoError(t, err)

	session, err := fx.repo.GetSession(context.Background(), "sess1")
	require.NoError(t, err)
	assert.Equal(t, chatstorage.StatusConnecting, session.Status)

	handle, ok := fx.registry.Get("sess1")
	require.True(t, ok)
	assert.Equal(t, chatstorage.StatusConnecting, handle.Status)
	assert.Equal(t, 1, fx.factory.openedCount())
}

func TestLifecycle_PairingEventPersistsQRCode(t *testing.T) {
	fx := newLifecycleFixture(t, 20*time.Millisecond)
	require.NoError(t, fx.controller.CreateSession(context.Background(), "sess1", "user1"))

	fx.factory.linkAt(0).emit(link.ConnectionEvent{State: link.StatePairing, PairingCode: "2@abcdef"})

	session, err := fx.repo.GetSession(context.Background(), "sess1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(session.QRCode, "data:image/png;base64,"), "QR must be stored as a PNG data URI")

	handle, ok := fx.registry.Get("sess1")
	require.True(t, ok)
	assert.Equal(t, session.QRCode, handle.QRCode)
}

func TestLifecycle_OpenEventPersistsPhoneAndClearsQR(t *testing.T) {
	fx := newLifecycleFixture(t, 20*time.Millisecond)
	require.NoError(t, fx.controller.CreateSession(context.Background(), "sess1", "user1"))

	deviceLink := fx.factory.linkAt(0)
	deviceLink.self = "15559999"
	deviceLink.emit(link.ConnectionEvent{State: link.StatePairing, PairingCode: "2@abcdef"})
	deviceLink.emit(link.ConnectionEvent{State: link.StateOpen})

	session, err := fx.repo.GetSession(context.Background(), "sess1")
	require.NoError(t, err)
	assert.Equal(t, chatstorage.StatusConnected, session.Status)
	assert.Equal(t, "15559999", session.PhoneNumber)
	assert.Empty(t, session.QRCode)

	handle, ok := fx.registry.Get("sess1")
	require.True(t, ok)
	assert.Equal(t, chatstorage.StatusConnected, handle.Status)
	assert.Empty(t, handle.QRCode)
}

func TestLifecycle_LogoutCloseNeverReconnects(t *testing.T) {
	fx := newLifecycleFixture(t, 20*time.Millisecond)
	require.NoError(t, fx.controller.CreateSession(context.Background(), "sess1", "user1"))

	fx.factory.linkAt(0).emit(link.ConnectionEvent{State: link.StateClosed, Reason: link.CloseLoggedOut})

	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, 1, fx.factory.openedCount(), "a logout close must not schedule a reconnect")
	_, ok := fx.registry.Get("sess1")
	assert.False(t, ok, "registry entry must be removed")
	assert.Equal(t, []string{"sess1"}, fx.factory.wipeList(), "credentials must be wiped")

	session, err := fx.repo.GetSession(context.Background(), "sess1")
	require.NoError(t, err)
	assert.Equal(t, chatstorage.StatusDisconnected, session.Status)
}

func TestLifecycle_NetworkCloseReconnectsWithSingleLiveHandle(t *testing.T) {
	fx := newLifecycleFixture(t, 20*time.Millisecond)
	require.NoError(t, fx.controller.CreateSession(context.Background(), "sess1", "user1"))

	fx.factory.linkAt(0).emit(link.ConnectionEvent{State: link.StateClosed, Reason: link.CloseNetwork})

	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, 2, fx.factory.openedCount(), "a transient close must relink once after the delay")
	assert.Equal(t, 1, fx.registry.Count(), "only one live handle may exist per session")

	handle, ok := fx.registry.Get("sess1")
	require.True(t, ok)
	assert.Same(t, fx.factory.linkAt(1), handle.Link.(*fakeLink), "the registry must hold the replacement link")

	session, err := fx.repo.GetSession(context.Background(), "sess1")
	require.NoError(t, err)
	assert.Equal(t, chatstorage.StatusConnecting, session.Status, "status stays connecting during the retry loop")
}

func TestLifecycle_StaleEventsFromReplacedLinkAreIgnored(t *testing.T) {
	fx := newLifecycleFixture(t, 20*time.Millisecond)
	require.NoError(t, fx.controller.CreateSession(context.Background(), "sess1", "user1"))

	oldLink := fx.factory.linkAt(0)
	oldLink.emit(link.ConnectionEvent{State: link.StateClosed, Reason: link.CloseNetwork})
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 2, fx.factory.openedCount())

	// The replaced link reporting open must not flip the session state.
	oldLink.emit(link.ConnectionEvent{State: link.StateOpen})

	session, err := fx.repo.GetSession(context.Background(), "sess1")
	require.NoError(t, err)
	assert.Equal(t, chatstorage.StatusConnecting, session.Status)
}

func TestLifecycle_DisconnectTearsDownEvenWhenLogoutFails(t *testing.T) {
	fx := newLifecycleFixture(t, 20*time.Millisecond)
	require.NoError(t, fx.controller.CreateSession(context.Background(), "sess1", "user1"))

	deviceLink := fx.factory.linkAt(0)
	deviceLink.logoutErr = errors.New("not connected")
	deviceLink.emit(link.ConnectionEvent{State: link.StateOpen})

	err := fx.controller.DisconnectSession(context.Background(), "sess1")
	require.NoError(t, err)

	session, err := fx.repo.GetSession(context.Background(), "sess1")
	require.NoError(t, err)
	assert.Equal(t, chatstorage.StatusDisconnected, session.Status)

	_, ok := fx.registry.Get("sess1")
	assert.False(t, ok)
	assert.Equal(t, []string{"sess1"}, fx.factory.wipeList())
	assert.GreaterOrEqual(t, deviceLink.terminated, 1, "the link must be terminated despite the failed logout")
}

func TestLifecycle_DisconnectCancelsPendingReconnect(t *testing.T) {
	fx := newLifecycleFixture(t, 50*time.Millisecond)
	require.NoError(t, fx.controller.CreateSession(context.Background(), "sess1", "user1"))

	fx.factory.linkAt(0).emit(link.ConnectionEvent{State: link.StateClosed, Reason: link.CloseNetwork})

	// Tear the session down while the reconnect timer is still pending.
	require.NoError(t, fx.controller.DisconnectSession(context.Background(), "sess1"))

	time.Sleep(150 * time.Millisecond)

	assert.Equal(t, 1, fx.factory.openedCount(), "a stale reconnect timer must not resurrect the session")
	_, ok := fx.registry.Get("sess1")
	assert.False(t, ok)
}

func TestLifecycle_ReconnectRecreatesMissingSessionRow(t *testing.T) {
	fx := newLifecycleFixture(t, 20*time.Millisecond)
	require.NoError(t, fx.controller.CreateSession(context.Background(), "sess1", "user1"))

	fx.factory.linkAt(0).emit(link.ConnectionEvent{State: link.StateClosed, Reason: link.CloseNetwork})

	// Simulate an external CRUD layer deleting the row mid-retry.
	require.NoError(t, fx.repo.DeleteSession(context.Background(), "sess1"))

	time.Sleep(100 * time.Millisecond)

	session, err := fx.repo.GetSession(context.Background(), "sess1")
	require.NoError(t, err, "reconnect must recreate the missing row")
	assert.Equal(t, chatstorage.StatusConnecting, session.Status)
	assert.Equal(t, "user1", session.UserID)
	assert.Equal(t, 2, fx.factory.openedCount())
}

func TestLifecycle_MessageEventsFlowIntoStorage(t *testing.T) {
	fx := newLifecycleFixture(t, 20*time.Millisecond)
	require.NoError(t, fx.controller.CreateSession(context.Background(), "sess1", "user1"))

	deviceLink := fx.factory.linkAt(0)
	deviceLink.emit(link.ConnectionEvent{State: link.StateOpen})
	deviceLink.emit(link.MessageEvent{Envelope: link.Envelope{
		RemoteAddress: "15551234@s.whatsapp.net",
		PushName:      "Alice",
		Timestamp:     time.Now().UTC(),
		Content:       link.Content{Kind: link.KindText, Text: "hello"},
	}})

	time.Sleep(100 * time.Millisecond)

	conversations := fx.repo.conversationList()
	require.Len(t, conversations, 1)
	assert.Equal(t, "Alice", conversations[0].ContactName)
	assert.Equal(t, "hello", conversations[0].LastMessage)
}

func TestLifecycle_ResumeReattachesActiveSessions(t *testing.T) {
	fx := newLifecycleFixture(t, 20*time.Millisecond)

	now := time.Now().UTC()
	require.NoError(t, fx.repo.CreateSession(context.Background(), &chatstorage.Session{
		ID: "sess1", UserID: "user1", Status: chatstorage.StatusConnected, CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, fx.repo.CreateSession(context.Background(), &chatstorage.Session{
		ID: "sess2", UserID: "user1", Status: chatstorage.StatusDisconnected, CreatedAt: now, UpdatedAt: now,
	}))

	fx.controller.Resume(context.Background())

	assert.Equal(t, 1, fx.factory.openedCount(), "only non-disconnected sessions resume")
	_, ok := fx.registry.Get("sess1")
	assert.True(t, ok)
	_, ok = fx.registry.Get("sess2")
	assert.False(t, ok)
}

func TestLifecycle_StatusMergesRegistryOverStore(t *testing.T) {
	fx := newLifecycleFixture(t, 20*time.Millisecond)
	require.NoError(t, fx.controller.CreateSession(context.Background(), "sess1", "user1"))

	deviceLink := fx.factory.linkAt(0)
	deviceLink.self = "15559999"
	deviceLink.emit(link.ConnectionEvent{State: link.StateOpen})

	session, err := fx.controller.GetSessionStatus(context.Background(), "sess1")
	require.NoError(t, err)
	assert.Equal(t, chatstorage.StatusConnected, session.Status)
	assert.Equal(t, "15559999", session.PhoneNumber)
}
