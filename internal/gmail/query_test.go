package gmail

import (
	"testing"

	"github.com/stretchr/testify/assert"
	gmail "google.golang.org/api/gmail/v1"
)

func TestLabelQuery(t *testing.T) {
	tests := []struct {
		name   string
		labels []string
		want   string
	}{
		{"no labels", nil, "in:inbox has:attachment -in:spam -in:trash"},
		{"one label", []string{"Klienci"}, `label:"Klienci" has:attachment -in:spam -in:trash`},
		{"two labels", []string{"Klienci", "Faktury 2024"}, `(label:"Klienci" OR label:"Faktury 2024") has:attachment -in:spam -in:trash`},
		{"quotes stripped", []string{`a"b`}, `label:"ab" has:attachment -in:spam -in:trash`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LabelQuery(tt.labels))
		})
	}
}

func TestExistingLabels(t *testing.T) {
	available := []*gmail.Label{{Name: "INBOX"}, {Name: "Klienci"}, {Name: "Faktury"}, nil}
	assert.Equal(t, []string{"Klienci", "Faktury"}, existingLabels(available, []string{"klienci", "Missing", " FAKTURY "}))
	assert.Empty(t, existingLabels(available, []string{"nope"}))
}
