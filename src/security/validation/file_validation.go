package validation

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/username/quantfolio/backend/src/logger"
)

// allowedCSVClientContentTypes is the allowlist for client-declared MIME
// types on forward-log uploads.
var allowedCSVClientContentTypes = map[string]bool{
	"text/csv":                 true,
	"application/csv":          true,
	"application/vnd.ms-excel": true, // older Excel exports CSV under this type
	"text/plain":               true,
	"application/octet-stream": true,
}

// allowedXLSXClientContentTypes is the allowlist for backtest report uploads.
var allowedXLSXClientContentTypes = map[string]bool{
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
	"application/zip":          true, // xlsx is a zip container
	"application/octet-stream": true,
}

// xlsxMagic is the zip local-file-header signature every xlsx starts with.
var xlsxMagic = []byte{0x50, 0x4B, 0x03, 0x04}

// ValidateCSVClientContentType checks the Content-Type header the client
// declared for a forward-log upload.
func ValidateCSVClientContentType(contentType string) error {
	normalized := strings.ToLower(strings.Split(contentType, ";")[0])
	if !allowedCSVClientContentTypes[normalized] {
		logger.L.Warn("Disallowed client-declared Content-Type for CSV upload", "contentType", contentType)
		return fmt.Errorf("client-declared file type '%s' is not allowed for CSV upload", contentType)
	}
	return nil
}

// ValidateXLSXClientContentType checks the Content-Type header the client
// declared for a backtest report upload.
func ValidateXLSXClientContentType(contentType string) error {
	normalized := strings.ToLower(strings.Split(contentType, ";")[0])
	if !allowedXLSXClientContentTypes[normalized] {
		logger.L.Warn("Disallowed client-declared Content-Type for xlsx upload", "contentType", contentType)
		return fmt.Errorf("client-declared file type '%s' is not allowed for report upload", contentType)
	}
	return nil
}

// ValidateCSVContent checks the actual file content signature and resets the
// read pointer so the parser can read the full file afterwards.
func ValidateCSVContent(file io.ReadSeeker) (string, error) {
	buffer, err := peek(file)
	if err != nil {
		return "", err
	}

	detected := http.DetectContentType(buffer)
	detected = strings.ToLower(strings.Split(detected, ";")[0])

	// A forward log only has to be text; strict parsing later rejects
	// anything that merely sniffs as text.
	allowedDetected := map[string]bool{
		"text/plain":               true,
		"text/csv":                 true,
		"application/csv":          true,
		"application/octet-stream": true,
	}
	if !allowedDetected[detected] {
		logger.L.Warn("Disallowed detected file content type (magic bytes)", "detectedContentType", detected)
		return detected, fmt.Errorf("detected file content type '%s' is not consistent with a CSV file", detected)
	}
	return detected, nil
}

// ValidateXLSXContent requires the zip signature an xlsx container always
// carries, then resets the read pointer.
func ValidateXLSXContent(file io.ReadSeeker) error {
	buffer, err := peek(file)
	if err != nil {
		return err
	}
	if len(buffer) < len(xlsxMagic) || !bytes.HasPrefix(buffer, xlsxMagic) {
		logger.L.Warn("Uploaded report lacks the xlsx zip signature")
		return fmt.Errorf("file content is not an xlsx spreadsheet")
	}
	return nil
}

func peek(file io.ReadSeeker) ([]byte, error) {
	if file == nil {
		return nil, fmt.Errorf("file is nil")
	}
	buffer := make([]byte, 512)
	n, err := file.Read(buffer)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read file for content type checking: %w", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to reset file read pointer: %w", err)
	}
	return buffer[:n], nil
}
