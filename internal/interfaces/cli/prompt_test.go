package cli

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finboard/internal/shared/messages"
)

func TestPrompter_Line(t *testing.T) {
	var out bytes.Buffer
	p := NewPrompter(strings.NewReader("first\r\nsecond"), &out)

	line, err := p.Line("> ")
	require.NoError(t, err)
	assert.Equal(t, "first", line)

	line, err = p.Line("")
	require.NoError(t, err)
	assert.Equal(t, "second", line, "last line without newline")

	_, err = p.Line("")
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "> ", out.String())
}

func TestPrompter_YesNo(t *testing.T) {
	tests := []struct {
		input string
		def   bool
		want  bool
	}{
		{input: "y\n", want: true},
		{input: "YES\n", want: true},
		{input: "n\n", def: true, want: false},
		{input: "\n", def: true, want: true},
		{input: "\n", def: false, want: false},
		{input: "maybe\n", def: true, want: false},
	}

	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			p := NewPrompter(strings.NewReader(tt.input), io.Discard)
			got, err := p.YesNo("Continue?", tt.def)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrompter_SecretWithoutTerminal(t *testing.T) {
	p := NewPrompter(strings.NewReader("s3cret\n"), io.Discard)

	got, err := p.Secret("Token: ")

	require.NoError(t, err)
	assert.Equal(t, "s3cret", got)
}

func TestPrompter_Confirm(t *testing.T) {
	var out bytes.Buffer
	p := NewPrompter(strings.NewReader("\n"), &out)

	ok, err := p.Confirm(context.Background(), messages.MessageText{Title: "Clear conversation?", Body: "Cannot be undone."})

	require.NoError(t, err)
	assert.False(t, ok, "defaults to no")
	assert.Contains(t, out.String(), "Clear conversation?")
	assert.Contains(t, out.String(), "Cannot be undone.")
	assert.Contains(t, out.String(), "[y/N]")
}
