package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	gmail "google.golang.org/api/gmail/v1"
)

const (
	// MaxAttachmentSize defines the maximum attachment size in bytes (25MB)
	MaxAttachmentSize = 25 * 1024 * 1024
)

// attachmentPart is a message part carrying a named payload, either
// inline (Data) or by reference (AttachmentID).
type attachmentPart struct {
	PartID       string
	Filename     string
	MimeType     string
	AttachmentID string
	Data         string
	Size         int64
}

// collectAttachments returns every part with a filename and a body, in
// document order.
func collectAttachments(payload *gmail.MessagePart) []attachmentPart {
	var out []attachmentPart
	walkParts(payload, func(part *gmail.MessagePart) {
		if part.Filename == "" || part.Body == nil {
			return
		}
		if part.Body.AttachmentId == "" && part.Body.Data == "" {
			return
		}
		out = append(out, attachmentPart{
			PartID:       part.PartId,
			Filename:     part.Filename,
			MimeType:     part.MimeType,
			AttachmentID: part.Body.AttachmentId,
			Data:         part.Body.Data,
			Size:         part.Body.Size,
		})
	})
	return out
}

// getAttachment downloads the content of a referenced attachment.
func (s *Source) getAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	if messageID == "" {
		return nil, fmt.Errorf("messageID is required")
	}
	if attachmentID == "" {
		return nil, fmt.Errorf("attachmentID is required")
	}

	var attachment *gmail.MessagePartBody
	err := s.observe(ctx, "get_attachment", func(ctx context.Context) error {
		var err error
		attachment, err = s.svc.Messages.Attachments.Get(s.user, messageID, attachmentID).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment %s: %w", attachmentID, err)
	}

	if attachment.Size > MaxAttachmentSize {
		return nil, fmt.Errorf("attachment size %d exceeds maximum size %d", attachment.Size, MaxAttachmentSize)
	}
	return decodeData(attachment.Data)
}

// decodeData decodes Gmail's base64url body data, tolerating missing
// padding and standard base64.
func decodeData(data string) ([]byte, error) {
	data = strings.TrimSpace(data)
	for _, enc := range []*base64.Encoding{base64.URLEncoding, base64.RawURLEncoding, base64.StdEncoding, base64.RawStdEncoding} {
		if decoded, err := enc.DecodeString(data); err == nil {
			return decoded, nil
		}
	}
	return nil, fmt.Errorf("failed to decode attachment data")
}

// walkParts recursively walks through message parts
func walkParts(part *gmail.MessagePart, fn func(*gmail.MessagePart)) {
	if part == nil {
		return
	}

	fn(part)

	for _, subpart := range part.Parts {
		walkParts(subpart, fn)
	}
}
