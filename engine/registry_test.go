package engine

import (
	"testing"

	"github.com/hctoledo/wachannel/domains/chatstorage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_PutTerminatesReplacedLink(t *testing.T) {
	registry := NewRegistry()

	oldLink := &fakeLink{}
	newLink := &fakeLink{}
	registry.Put(&Handle{SessionID: "sess1", Link: oldLink})
	registry.Put(&Handle{SessionID: "sess1", Link: newLink})

	assert.Equal(t, 1, oldLink.terminated, "replaced link must be terminated")
	assert.Equal(t, 0, newLink.terminated)
	assert.Equal(t, 1, registry.Count())

	handle, ok := registry.Get("sess1")
	require.True(t, ok)
	assert.Same(t, newLink, handle.Link.(*fakeLink))
}

func TestRegistry_RemoveAndMiss(t *testing.T) {
	registry := NewRegistry()
	registry.Put(&Handle{SessionID: "sess1", Link: &fakeLink{}})

	registry.Remove("sess1")
	_, ok := registry.Get("sess1")
	assert.False(t, ok)
	assert.Equal(t, 0, registry.Count())
}

func TestRegistry_FieldSettersIgnoreMissingSessions(t *testing.T) {
	registry := NewRegistry()

	// Must not panic on unknown IDs.
	registry.SetStatus("ghost", chatstorage.StatusConnected)
	registry.SetQRCode("ghost", "qr")
	registry.SetPhoneNumber("ghost", "123")

	registry.Put(&Handle{SessionID: "sess1", Link: &fakeLink{}})
	registry.SetStatus("sess1", chatstorage.StatusConnected)
	registry.SetQRCode("sess1", "qr-data")
	registry.SetPhoneNumber("sess1", "15551234")

	handle, _ := registry.Get("sess1")
	assert.Equal(t, chatstorage.StatusConnected, handle.Status)
	assert.Equal(t, "qr-data", handle.QRCode)
	assert.Equal(t, "15551234", handle.PhoneNumber)
}
