// Package imagedata decodes client-supplied images and produces the small
// JPEG previews kept alongside meal records.
package imagedata

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/disintegration/imaging"
)

const (
	// MaxEncodedKB is the largest accepted image, measured as the decoded
	// size estimated from the encoded length.
	MaxEncodedKB = 5000

	// ThumbnailMaxDim bounds both sides of a retained preview.
	ThumbnailMaxDim = 480
)

var (
	ErrEmpty       = errors.New("no image data")
	ErrUnsupported = errors.New("unsupported image format")
)

// allowedImageTypes lists the meal photo formats the vision backends accept.
// http.DetectContentType has no WebP signature, so SniffMIME checks the RIFF
// header itself.
var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

// isWebP reports whether data is a WebP image (RIFF container with "WEBP" at
// offset 8).
func isWebP(data []byte) bool {
	return len(data) >= 12 &&
		string(data[0:4]) == "RIFF" &&
		string(data[8:12]) == "WEBP"
}

// SniffMIME returns the detected MIME type and true if data is an accepted
// image format, or ("", false) otherwise.
func SniffMIME(data []byte) (string, bool) {
	if isWebP(data) {
		return "image/webp", true
	}
	mime := http.DetectContentType(data)
	if allowedImageTypes[mime] {
		return mime, true
	}
	return "", false
}

// EncodedSizeKB estimates the decoded size in KB of a base64 payload.
func EncodedSizeKB(encoded string) int {
	return int(math.Round(float64(len(encoded)) * 3 / 4 / 1024))
}

// Decode accepts plain base64 or a data URL and returns the image bytes and
// their sniffed MIME type.
func Decode(encoded string) ([]byte, string, error) {
	payload := strings.TrimSpace(encoded)
	if strings.HasPrefix(payload, "data:") {
		comma := strings.IndexByte(payload, ',')
		if comma < 0 {
			return nil, "", fmt.Errorf("malformed data URL: %w", ErrUnsupported)
		}
		payload = payload[comma+1:]
	}
	if payload == "" {
		return nil, "", ErrEmpty
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return nil, "", fmt.Errorf("failed to decode image: %w", err)
		}
	}
	if len(data) == 0 {
		return nil, "", ErrEmpty
	}

	mime, ok := SniffMIME(data)
	if !ok {
		return nil, "", ErrUnsupported
	}
	return data, mime, nil
}

// DataURL encodes data as a data URL of the given MIME type.
func DataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// Thumbnail downsizes an image to fit within ThumbnailMaxDim and returns it
// as a JPEG data URL. Smaller images are re-encoded but not enlarged.
func Thumbnail(data []byte) (string, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}
	thumb := imaging.Fit(img, ThumbnailMaxDim, ThumbnailMaxDim, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return "", fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return DataURL("image/jpeg", buf.Bytes()), nil
}
