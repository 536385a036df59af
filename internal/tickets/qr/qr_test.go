package qr

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerator_PNG(t *testing.T) {
	g := NewGenerator()

	data, err := g.PNG(`{"t":"TICKET","tid":"abc","eid":7,"exp":null,"sig":"00"}`)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, DefaultSize, img.Bounds().Dx())
}

func TestGenerator_EmptyPayload(t *testing.T) {
	_, err := NewGenerator().PNG("")
	assert.ErrorIs(t, err, ErrEmptyPayload)
}
