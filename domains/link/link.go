package link

import (
	"context"
	"time"
)

// State describes the connectivity of a device link.
type State string

const (
	StateOpen    State = "open"
	StateClosed  State = "closed"
	StatePairing State = "pairing"
)

// CloseReason explains why a link was closed.
type CloseReason string

const (
	CloseLoggedOut      CloseReason = "logged_out"
	CloseNetwork        CloseReason = "network"
	CloseStreamReplaced CloseReason = "stream_replaced"
	CloseUnknown        CloseReason = "unknown"
)

// Terminal reports whether the close is permanent. A logged out device has
// had its credentials revoked remotely, there is nothing to reconnect to.
func (r CloseReason) Terminal() bool {
	return r == CloseLoggedOut
}

// ContentKind identifies the payload type of an incoming message.
type ContentKind string

const (
	KindText         ContentKind = "text"
	KindExtendedText ContentKind = "extended_text"
	KindImage        ContentKind = "image"
	KindVideo        ContentKind = "video"
	KindDocument     ContentKind = "document"
	KindAudio        ContentKind = "audio"
	KindSticker      ContentKind = "sticker"
	KindContact      ContentKind = "contact"
	KindReaction     ContentKind = "reaction"
	KindUnknown      ContentKind = "unknown"
)

// Content is the decoded payload of a message, already stripped of
// transport-level wrappers.
type Content struct {
	Kind        ContentKind
	Text        string // plain or extended text body
	Caption     string // media caption, may be empty
	ContactName string // display name for contact cards
	Emoji       string // reaction emoji
}

// Envelope is a single message received or echoed over the link.
type Envelope struct {
	RemoteAddress string // full chat address, e.g. 15551234@s.whatsapp.net
	PushName      string
	FromSelf      bool
	Timestamp     time.Time
	Content       Content
}

// Event is a notification emitted by a device link.
type Event interface {
	isLinkEvent()
}

// ConnectionEvent signals a state transition of the link.
type ConnectionEvent struct {
	State       State
	Reason      CloseReason // set when State is StateClosed
	PairingCode string      // set when State is StatePairing
}

// MessageEvent carries one incoming or self-echoed message.
type MessageEvent struct {
	Envelope Envelope
}

func (ConnectionEvent) isLinkEvent() {}
func (MessageEvent) isLinkEvent()    {}

// EventHandler receives events from a link. Handlers must not block.
type EventHandler func(evt Event)

// DeviceLink is a live connection to one linked device.
type DeviceLink interface {
	// SetEventHandler registers the handler. Must be called before Connect.
	SetEventHandler(handler EventHandler)
	// Connect starts the link. When the device is not yet paired it emits
	// pairing events until the QR code is scanned or times out.
	Connect(ctx context.Context) error
	// Send delivers a text message to the given full chat address.
	Send(ctx context.Context, address, text string) error
	// Logout revokes the pairing on the remote device.
	Logout(ctx context.Context) error
	// Terminate tears the link down without touching the pairing.
	Terminate()
	// SelfAddress returns the phone number of the linked device, empty
	// until the link has been open at least once.
	SelfAddress() string
}

// Factory opens device links and manages their stored credentials.
type Factory interface {
	Open(ctx context.Context, sessionID string) (DeviceLink, error)
	WipeCredentials(sessionID string) error
}
