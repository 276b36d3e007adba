package whatsapp

import (
	"github.com/hctoledo/wachannel/domains/link"
	"go.mau.fi/whatsmeow/proto/waE2E"
)

// extractContent maps a raw protocol message onto the closed set of content
// kinds the normalizer understands. Probe order matters, the first matching
// payload wins.
func extractContent(msg *waE2E.Message) link.Content {
	if msg == nil {
		return link.Content{Kind: link.KindUnknown}
	}
	msg = unwrapFutureProof(msg)

	if text := msg.GetConversation(); text != "" {
		return link.Content{Kind: link.KindText, Text: text}
	}
	if extended := msg.GetExtendedTextMessage(); extended != nil {
		return link.Content{Kind: link.KindExtendedText, Text: extended.GetText()}
	}
	if image := msg.GetImageMessage(); image != nil {
		return link.Content{Kind: link.KindImage, Caption: image.GetCaption()}
	}
	if video := msg.GetVideoMessage(); video != nil {
		return link.Content{Kind: link.KindVideo, Caption: video.GetCaption()}
	}
	if document := msg.GetDocumentMessage(); document != nil {
		return link.Content{Kind: link.KindDocument, Caption: document.GetCaption()}
	}
	if audio := msg.GetAudioMessage(); audio != nil {
		return link.Content{Kind: link.KindAudio}
	}
	if sticker := msg.GetStickerMessage(); sticker != nil {
		return link.Content{Kind: link.KindSticker}
	}
	if contact := msg.GetContactMessage(); contact != nil {
		return link.Content{Kind: link.KindContact, ContactName: contact.GetDisplayName()}
	}
	if reaction := msg.GetReactionMessage(); reaction != nil {
		return link.Content{Kind: link.KindReaction, Emoji: reaction.GetText()}
	}
	return link.Content{Kind: link.KindUnknown}
}

// unwrapFutureProof peels view-once and ephemeral wrappers off the payload.
// Nesting deeper than a few levels does not occur in practice.
func unwrapFutureProof(msg *waE2E.Message) *waE2E.Message {
	unwrap := func(m *waE2E.Message) *waE2E.Message {
		if v := m.GetViewOnceMessage(); v != nil {
			return v.GetMessage()
		}
		if v := m.GetEphemeralMessage(); v != nil {
			return v.GetMessage()
		}
		if v := m.GetViewOnceMessageV2(); v != nil {
			return v.GetMessage()
		}
		if v := m.GetViewOnceMessageV2Extension(); v != nil {
			return v.GetMessage()
		}
		return nil
	}
	for i := 0; i < 3; i++ {
		if next := unwrap(msg); next != nil {
			msg = next
		} else {
			break
		}
	}
	return msg
}
