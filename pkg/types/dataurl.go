package types

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
)

var dataURLRegex = regexp.MustCompile(`^data:([^;,]+);base64,`)

// EncodeDataURL formats raw bytes as a base64 data URL.
func EncodeDataURL(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
}

// ParseDataURL decodes a base64 data URL. A bare base64 payload takes fallbackMime.
func ParseDataURL(value, fallbackMime string) (ImageData, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return ImageData{}, fmt.Errorf("empty data URL")
	}

	mime := fallbackMime
	if m := dataURLRegex.FindStringSubmatch(value); len(m) == 2 {
		mime = m[1]
	}
	payload := value
	if idx := strings.IndexByte(value, ','); idx >= 0 {
		payload = value[idx+1:]
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return ImageData{}, fmt.Errorf("invalid base64 payload: %w", err)
	}
	return ImageData{Data: data, MimeType: mime}, nil
}
