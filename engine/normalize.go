package engine

import (
	"fmt"

	"github.com/hctoledo/wachannel/domains/link"
)

// Normalize flattens a decoded message payload into the single text line
// stored on conversations. The result is never empty, unrecognized payloads
// collapse to a generic placeholder.
func Normalize(content link.Content) string {
	switch content.Kind {
	case link.KindText, link.KindExtendedText:
		if content.Text != "" {
			return content.Text
		}
	case link.KindImage:
		return mediaLabel("Image", content.Caption)
	case link.KindVideo:
		return mediaLabel("Video", content.Caption)
	case link.KindDocument:
		return mediaLabel("Document", content.Caption)
	case link.KindAudio:
		return "[Audio Message]"
	case link.KindSticker:
		return "[Sticker]"
	case link.KindContact:
		if content.ContactName != "" {
			return fmt.Sprintf("[Contact: %s]", content.ContactName)
		}
		return "[Contact]"
	case link.KindReaction:
		if content.Emoji != "" {
			return fmt.Sprintf("[Reaction: %s]", content.Emoji)
		}
		return "[Reaction]"
	}
	return "[Message]"
}

func mediaLabel(kind, caption string) string {
	if caption != "" {
		return fmt.Sprintf("[%s]: %s", kind, caption)
	}
	return fmt.Sprintf("[%s]", kind)
}
