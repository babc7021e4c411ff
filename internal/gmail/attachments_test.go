package gmail

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gmail "google.golang.org/api/gmail/v1"
)

func TestWalkParts(t *testing.T) {
	tests := []struct {
		name          string
		part          *gmail.MessagePart
		expectedParts int
	}{
		{
			name:          "single part",
			part:          &gmail.MessagePart{PartId: "0", MimeType: "text/plain"},
			expectedParts: 1,
		},
		{
			name: "deeply nested parts",
			part: &gmail.MessagePart{
				PartId:   "0",
				MimeType: "multipart/mixed",
				Parts: []*gmail.MessagePart{
					{
						PartId:   "0.0",
						MimeType: "multipart/alternative",
						Parts: []*gmail.MessagePart{
							{PartId: "0.0.0", MimeType: "text/plain"},
							{PartId: "0.0.1", MimeType: "text/html"},
						},
					},
					{PartId: "0.1", MimeType: "application/pdf"},
				},
			},
			expectedParts: 5, // parent + 2 children + 2 grandchildren
		},
		{
			name:          "nil part",
			part:          nil,
			expectedParts: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			count := 0
			walkParts(tt.part, func(*gmail.MessagePart) { count++ })
			assert.Equal(t, tt.expectedParts, count)
		})
	}
}

func TestCollectAttachments(t *testing.T) {
	payload := &gmail.MessagePart{
		MimeType: "multipart/mixed",
		Parts: []*gmail.MessagePart{
			{PartId: "0", MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: "aGk"}},
			{PartId: "1", MimeType: "application/pdf", Filename: "inv.pdf", Body: &gmail.MessagePartBody{AttachmentId: "att-1", Size: 10}},
			{
				PartId:   "2",
				MimeType: "multipart/related",
				Parts: []*gmail.MessagePart{
					{PartId: "2.0", MimeType: "image/png", Filename: "logo.png", Body: &gmail.MessagePartBody{Data: "iVBO"}},
				},
			},
			{PartId: "3", MimeType: "text/calendar", Filename: "empty.ics", Body: &gmail.MessagePartBody{}},
			{PartId: "4", Filename: "nobody.txt"},
		},
	}

	got := collectAttachments(payload)
	require.Len(t, got, 2)
	assert.Equal(t, "inv.pdf", got[0].Filename)
	assert.Equal(t, "att-1", got[0].AttachmentID)
	assert.Equal(t, "logo.png", got[1].Filename)
	assert.Equal(t, "iVBO", got[1].Data)
}

func TestDecodeData(t *testing.T) {
	payload := []byte("Special: !@#$%^&*()\xff\xfe")
	tests := []struct {
		name  string
		input string
	}{
		{"url base64", base64.URLEncoding.EncodeToString(payload)},
		{"raw url base64", base64.RawURLEncoding.EncodeToString(payload)},
		{"standard base64", base64.StdEncoding.EncodeToString(payload)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeData(tt.input)
			require.NoError(t, err)
			assert.Equal(t, payload, got)
		})
	}

	_, err := decodeData("!!!")
	assert.Error(t, err)
}

func TestMaxAttachmentSize(t *testing.T) {
	assert.Equal(t, 25*1024*1024, MaxAttachmentSize)
}
