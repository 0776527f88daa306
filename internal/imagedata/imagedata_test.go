package imagedata

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestSniffMIME(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		wantMIME string
		wantOK   bool
	}{
		{name: "jpeg", data: []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'}, wantMIME: "image/jpeg", wantOK: true},
		{name: "png", data: []byte("\x89PNG\r\n\x1a\n"), wantMIME: "image/png", wantOK: true},
		{name: "gif", data: []byte("GIF89a"), wantMIME: "image/gif", wantOK: true},
		{name: "webp", data: []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), wantMIME: "image/webp", wantOK: true},
		{name: "text", data: []byte("hello world"), wantOK: false},
		{name: "riff but not webp", data: []byte("RIFF\x00\x00\x00\x00WAVEfmt "), wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mime, ok := SniffMIME(tt.data)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantMIME, mime)
		})
	}
}

func TestEncodedSizeKB(t *testing.T) {
	assert.Equal(t, 0, EncodedSizeKB(""))
	assert.Equal(t, 3, EncodedSizeKB(strings.Repeat("A", 4096)))
	assert.Equal(t, 5000, EncodedSizeKB(strings.Repeat("A", 5000*1024*4/3)))
	assert.Greater(t, EncodedSizeKB(strings.Repeat("A", 5001*1024*4/3)), MaxEncodedKB)
}

func TestDecode(t *testing.T) {
	raw := pngBytes(t, 4, 4)
	plain := base64.StdEncoding.EncodeToString(raw)

	for name, input := range map[string]string{
		"plain base64": plain,
		"data url":     "data:image/png;base64," + plain,
		"mislabelled":  "data:image/jpeg;base64," + plain,
		"unpadded":     strings.TrimRight(plain, "="),
	} {
		t.Run(name, func(t *testing.T) {
			data, mime, err := Decode(input)
			require.NoError(t, err)
			assert.Equal(t, raw, data)
			assert.Equal(t, "image/png", mime)
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	_, _, err := Decode("")
	assert.ErrorIs(t, err, ErrEmpty)

	_, _, err = Decode("data:image/png;base64,")
	assert.ErrorIs(t, err, ErrEmpty)

	_, _, err = Decode(base64.StdEncoding.EncodeToString([]byte("just some text")))
	assert.ErrorIs(t, err, ErrUnsupported)

	_, _, err = Decode("data:image/png;base64")
	assert.ErrorIs(t, err, ErrUnsupported)

	_, _, err = Decode("***not base64***")
	assert.Error(t, err)
}

func TestThumbnail(t *testing.T) {
	url, err := Thumbnail(pngBytes(t, 960, 240))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "data:image/jpeg;base64,"))

	data, mime, err := Decode(url)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mime)

	img, err := imaging.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, ThumbnailMaxDim, img.Bounds().Dx())
	assert.Equal(t, 120, img.Bounds().Dy())
}

func TestThumbnailDoesNotEnlarge(t *testing.T) {
	url, err := Thumbnail(pngBytes(t, 64, 32))
	require.NoError(t, err)

	data, _, err := Decode(url)
	require.NoError(t, err)
	img, err := imaging.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
	assert.Equal(t, 32, img.Bounds().Dy())
}

func TestThumbnailRejectsGarbage(t *testing.T) {
	_, err := Thumbnail([]byte("not an image"))
	assert.Error(t, err)
}
