package document

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPDFExtractor_Empty(t *testing.T) {
	_, err := NewPDFExtractor().Extract(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyDocument)
}

func TestPDFExtractor_NotAPDF(t *testing.T) {
	_, err := NewPDFExtractor().Extract(context.Background(), []byte("hello, this is plain text"))
	require.Error(t, err)
}

func TestPDFExtractor_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewPDFExtractor().Extract(ctx, []byte("%PDF-1.4"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNormalize(t *testing.T) {
	in := "Jean Dupont  \r\nDéveloppeur\r\n\r\n\r\n\r\nExpérience\x00\n"
	assert.Equal(t, "Jean Dupont\nDéveloppeur\n\nExpérience", Normalize(in))
}
