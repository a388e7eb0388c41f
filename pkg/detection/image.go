package detection

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // decode PNG data URLs
	"strings"
)

// DefaultJPEGQuality is used when encoding frames for remote backends.
const DefaultJPEGQuality = 85

const dataURLPrefix = "data:image/jpeg;base64,"

// EncodeJPEG encodes img as JPEG.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeDataURL encodes img as a base64 JPEG data URL.
func EncodeDataURL(img image.Image, quality int) (string, error) {
	data, err := EncodeJPEG(img, quality)
	if err != nil {
		return "", err
	}
	return dataURLPrefix + base64.StdEncoding.EncodeToString(data), nil
}

// DecodeDataURL decodes a base64 image data URL. A bare base64 string
// without the "data:...;base64," header is accepted too.
func DecodeDataURL(s string) (image.Image, error) {
	payload := s
	if strings.HasPrefix(s, "data:") {
		i := strings.Index(s, ",")
		if i < 0 || !strings.Contains(s[:i], ";base64") {
			return nil, errors.New("detection: data URL is not base64")
		}
		payload = s[i+1:]
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("detection: decode base64: %w", err)
	}
	return DecodeImage(data)
}

// DecodeImage decodes JPEG or PNG bytes.
func DecodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("detection: decode image: %w", err)
	}
	return img, nil
}
