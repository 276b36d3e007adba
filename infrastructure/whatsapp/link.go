package whatsapp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hctoledo/wachannel/config"
	"github.com/hctoledo/wachannel/domains/link"
	"github.com/sirupsen/logrus"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3"
)

// LinkFactory opens whatsmeow-backed device links. Each session gets its own
// sqlite credential store under the configured storage path.
type LinkFactory struct {
	storagePath string
	logLevel    string

	mu    sync.Mutex
	links map[string]*deviceLink
}

func NewLinkFactory(storagePath, logLevel string) *LinkFactory {
	return &LinkFactory{
		storagePath: storagePath,
		logLevel:    logLevel,
		links:       make(map[string]*deviceLink),
	}
}

func (f *LinkFactory) credentialPath(sessionID string) string {
	return filepath.Join(f.storagePath, fmt.Sprintf("whatsapp-%s.db", sessionID))
}

// Open builds a client for the session, reusing stored credentials when the
// device was paired before.
func (f *LinkFactory) Open(ctx context.Context, sessionID string) (link.DeviceLink, error) {
	dbURI := fmt.Sprintf("file:%s?_foreign_keys=on", f.credentialPath(sessionID))
	container, err := sqlstore.New(ctx, "sqlite3", dbURI, waLog.Stdout("DB-"+shortID(sessionID), f.logLevel, true))
	if err != nil {
		return nil, fmt.Errorf("failed to init credential store for %s: %w", sessionID, err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil || device == nil {
		device = container.NewDevice()
	}

	store.DeviceProps.PlatformType = &config.AppPlatform
	store.DeviceProps.Os = &config.AppOs

	client := whatsmeow.NewClient(device, waLog.Stdout("Client-"+shortID(sessionID), f.logLevel, true))
	// Reconnect policy lives in the lifecycle controller, the library must
	// not race it with its own retries.
	client.EnableAutoReconnect = false
	client.AutoTrustIdentity = true

	dl := &deviceLink{
		sessionID:    sessionID,
		client:       client,
		container:    container,
		autoMarkRead: config.WhatsappAutoMarkRead,
	}
	client.AddEventHandler(dl.translate)

	f.mu.Lock()
	f.links[sessionID] = dl
	f.mu.Unlock()

	logrus.Infof("[WHATSAPP] Opened device link for session %s", sessionID)
	return dl, nil
}

// WipeCredentials closes any tracked link and removes the session's sqlite
// store, including WAL side files.
func (f *LinkFactory) WipeCredentials(sessionID string) error {
	f.mu.Lock()
	dl, ok := f.links[sessionID]
	delete(f.links, sessionID)
	f.mu.Unlock()

	if ok {
		dl.Terminate()
		if dl.container != nil {
			if err := dl.container.Close(); err != nil {
				logrus.WithError(err).Warnf("[WHATSAPP] Session %s: failed to close credential store", sessionID)
			}
		}
	}

	base := f.credentialPath(sessionID)
	var firstErr error
	for _, path := range []string{base, base + "-wal", base + "-shm"} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logrus.WithError(err).Warnf("[WHATSAPP] Session %s: failed to remove %s", sessionID, path)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// deviceLink adapts one whatsmeow client to the DeviceLink interface.
type deviceLink struct {
	sessionID    string
	client       *whatsmeow.Client
	container    *sqlstore.Container
	autoMarkRead bool

	handlerMu sync.RWMutex
	handler   link.EventHandler
}

func (d *deviceLink) SetEventHandler(handler link.EventHandler) {
	d.handlerMu.Lock()
	d.handler = handler
	d.handlerMu.Unlock()
}

func (d *deviceLink) emit(evt link.Event) {
	d.handlerMu.RLock()
	handler := d.handler
	d.handlerMu.RUnlock()
	if handler != nil {
		handler(evt)
	}
}

func (d *deviceLink) Connect(ctx context.Context) error {
	if d.client.Store.ID == nil {
		// Fresh pairing, stream QR codes until scanned or timed out.
		qrChan, err := d.client.GetQRChannel(ctx)
		if err != nil && err != whatsmeow.ErrQRStoreContainsID {
			return fmt.Errorf("failed to open QR channel: %w", err)
		}
		if qrChan != nil {
			go d.watchQRChannel(qrChan)
		}
	}
	return d.client.Connect()
}

func (d *deviceLink) watchQRChannel(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case "code":
			d.emit(link.ConnectionEvent{State: link.StatePairing, PairingCode: item.Code})
		case "success":
			logrus.Infof("[WHATSAPP] Session %s: QR scan succeeded", d.sessionID)
		case "timeout":
			logrus.Warnf("[WHATSAPP] Session %s: QR pairing timed out", d.sessionID)
			d.emit(link.ConnectionEvent{State: link.StateClosed, Reason: link.CloseNetwork})
		}
	}
}

func (d *deviceLink) Send(ctx context.Context, address, text string) error {
	jid, err := types.ParseJID(address)
	if err != nil {
		return fmt.Errorf("invalid recipient address %s: %w", address, err)
	}
	_, err = d.client.SendMessage(ctx, jid, &waE2E.Message{Conversation: proto.String(text)})
	return err
}

func (d *deviceLink) Logout(ctx context.Context) error {
	return d.client.Logout(ctx)
}

func (d *deviceLink) Terminate() {
	d.client.Disconnect()
}

func (d *deviceLink) SelfAddress() string {
	if d.client.Store.ID == nil {
		return ""
	}
	return d.client.Store.ID.User
}

// translate converts raw whatsmeow events into link events.
func (d *deviceLink) translate(rawEvt interface{}) {
	switch evt := rawEvt.(type) {
	case *events.Connected:
		d.emit(link.ConnectionEvent{State: link.StateOpen})

	case *events.LoggedOut:
		logrus.Warnf("[WHATSAPP] Session %s logged out: %s", d.sessionID, evt.Reason)
		d.emit(link.ConnectionEvent{State: link.StateClosed, Reason: link.CloseLoggedOut})

	case *events.StreamReplaced:
		d.emit(link.ConnectionEvent{State: link.StateClosed, Reason: link.CloseStreamReplaced})

	case *events.Disconnected:
		d.emit(link.ConnectionEvent{State: link.StateClosed, Reason: link.CloseNetwork})

	case *events.Message:
		// Only direct chats feed the pipeline. Groups, broadcasts and
		// newsletters are out of scope for conversation storage.
		if evt.Info.Chat.Server != types.DefaultUserServer {
			return
		}

		if d.autoMarkRead && !evt.Info.IsFromMe {
			_ = d.client.MarkRead(context.Background(), []types.MessageID{evt.Info.ID}, time.Now(), evt.Info.Chat, evt.Info.Sender)
		}

		d.emit(link.MessageEvent{Envelope: link.Envelope{
			RemoteAddress: evt.Info.Chat.String(),
			PushName:      evt.Info.PushName,
			FromSelf:      evt.Info.IsFromMe,
			Timestamp:     evt.Info.Timestamp,
			Content:       extractContent(evt.Message),
		}})
	}
}
