package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessagePreview(t *testing.T) {
	text := func(s string) *string { return &s }

	cases := []struct {
		name  string
		msg   Message
		limit int
		want  string
	}{
		{"text body", Message{Kind: MessageText, Body: text("hello")}, 0, "hello"},
		{"file without body", Message{Kind: MessageFile}, 0, FilePreview},
		{"file with empty body", Message{Kind: MessageFile, Body: text("")}, 100, FilePreview},
		{"file with caption", Message{Kind: MessageFile, Body: text("contract")}, 100, "contract"},
		{"text without body", Message{Kind: MessageText}, 0, ""},
		{"truncated by runes", Message{Kind: MessageText, Body: text("héllo wörld")}, 5, "héllo..."},
		{"at the limit", Message{Kind: MessageText, Body: text("hello")}, 5, "hello"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.msg.Preview(tc.limit))
		})
	}

	long := strings.Repeat("a", 150)
	assert.Len(t, Message{Kind: MessageText, Body: &long}.Preview(100), 103)
}
