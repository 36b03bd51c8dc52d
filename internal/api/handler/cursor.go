package handler

import (
	"encoding/base64"
	"fmt"
)

// DecodeUploadCursor returns the last id of the previous page
func DecodeUploadCursor(cursorStr string) (string, error) {
	if cursorStr == "" {
		return "", nil
	}

	decoded, err := base64.URLEncoding.DecodeString(cursorStr)
	if err != nil {
		return "", err
	}
	if len(decoded) == 0 {
		return "", fmt.Errorf("invalid cursor format")
	}

	return string(decoded), nil
}

func EncodeUploadCursor(lastID string) string {
	return base64.URLEncoding.EncodeToString([]byte(lastID))
}
