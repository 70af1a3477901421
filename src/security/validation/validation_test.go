package validation

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/quantfolio/backend/src/logger"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	os.Exit(m.Run())
}

func TestValidateCSVClientContentType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		contentType string
		wantErr     bool
	}{
		{"plain csv", "text/csv", false},
		{"charset suffix", "text/csv; charset=utf-8", false},
		{"legacy excel", "application/vnd.ms-excel", false},
		{"octet stream fallback", "application/octet-stream", false},
		{"xlsx on csv endpoint", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", true},
		{"html", "text/html", true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateCSVClientContentType(tt.contentType)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateXLSXContent(t *testing.T) {
	t.Parallel()

	xlsxLike := bytes.NewReader([]byte("PK\x03\x04rest-of-zip"))
	require.NoError(t, ValidateXLSXContent(xlsxLike))

	// The pointer is reset so the parser sees the whole file.
	pos, err := xlsxLike.Seek(0, 1)
	require.NoError(t, err)
	assert.Zero(t, pos)

	assert.Error(t, ValidateXLSXContent(bytes.NewReader([]byte("Ticket,Magic\n1,2\n"))))
	assert.Error(t, ValidateXLSXContent(bytes.NewReader(nil)))
}

func TestValidateCSVContent(t *testing.T) {
	t.Parallel()

	detected, err := ValidateCSVContent(bytes.NewReader([]byte("Ticket,Magic,Open Date\n1001,12345,01/15/2024\n")))
	require.NoError(t, err)
	assert.Equal(t, "text/plain", detected)

	_, err = ValidateCSVContent(bytes.NewReader([]byte("<html><body>nope</body></html>")))
	assert.Error(t, err)
}

func TestSanitizeForFormulaInjection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain name", "Breakout EU", "Breakout EU"},
		{"equals formula", "=SUM(A1)", "'=SUM(A1)"},
		{"plus prefix", "+1234", "'+1234"},
		{"at prefix", "@cmd", "'@cmd"},
		{"leading space then formula", "  =x", "'  =x"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, SanitizeForFormulaInjection(tt.input))
		})
	}
}

func TestStripUnprintable(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "abc\ndef", StripUnprintable("abc\ndef"))
	assert.Equal(t, "clean", StripUnprintable("cl\x00ea\x07n"))
}
