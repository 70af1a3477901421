package handlers

import (
	"bytes"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/username/quantfolio/backend/src/logger"
	"github.com/username/quantfolio/backend/src/utils"
)

// ReportHandler serves the stored HTML backtest reports and their chart
// images. The terminal exports HTML as UTF-16LE, which browsers render as
// garbage when served with a UTF-8 header, so the file is transcoded on the
// way out.
type ReportHandler struct {
	reportHTMLPath string
}

func NewReportHandler(reportHTMLPath string) *ReportHandler {
	return &ReportHandler{reportHTMLPath: reportHTMLPath}
}

var imgSrcRe = regexp.MustCompile(`(?i)(<img[^>]+src=")([^"]+\.png)(")`)

func (h *ReportHandler) HandleGetReport(w http.ResponseWriter, r *http.Request) {
	magicNumber, err := strconv.Atoi(r.PathValue("magicNumber"))
	if err != nil {
		utils.SendJSONError(w, "magicNumber must be an integer", http.StatusBadRequest)
		return
	}

	path := filepath.Join(h.reportHTMLPath, strconv.Itoa(magicNumber)+".html")
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			utils.SendJSONError(w, "no HTML report stored for this strategy", http.StatusNotFound)
			return
		}
		logger.L.Error("Failed to read HTML report", "path", path, "error", err)
		utils.SendJSONError(w, "An internal error occurred while reading the report.", http.StatusInternalServerError)
		return
	}

	html, err := decodeReportHTML(raw)
	if err != nil {
		logger.L.Error("Failed to decode HTML report", "path", path, "error", err)
		utils.SendJSONError(w, "An internal error occurred while decoding the report.", http.StatusInternalServerError)
		return
	}

	// Image references in the export are relative filenames; point them at
	// the image endpoint instead.
	html = imgSrcRe.ReplaceAllFunc(html, func(match []byte) []byte {
		parts := imgSrcRe.FindSubmatch(match)
		rewritten := "/api/reports/images/" + filepath.Base(string(parts[2]))
		return append(append(append([]byte{}, parts[1]...), rewritten...), parts[3]...)
	})

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(html); err != nil {
		logger.L.Error("Error writing HTML report response", "error", err)
	}
}

func (h *ReportHandler) HandleGetReportImage(w http.ResponseWriter, r *http.Request) {
	filename := filepath.Base(r.PathValue("filename"))
	if filepath.Ext(filename) != ".png" {
		utils.SendJSONError(w, "only report PNGs are served here", http.StatusBadRequest)
		return
	}

	path := filepath.Join(h.reportHTMLPath, filename)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			utils.SendJSONError(w, "image not found", http.StatusNotFound)
			return
		}
		logger.L.Error("Failed to open report image", "path", path, "error", err)
		utils.SendJSONError(w, "An internal error occurred while reading the image.", http.StatusInternalServerError)
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", "image/png")
	if _, err := io.Copy(w, file); err != nil {
		logger.L.Error("Error writing report image response", "error", err)
	}
}

// decodeReportHTML transcodes UTF-16LE exports to UTF-8, passing through
// files that are already UTF-8.
func decodeReportHTML(raw []byte) ([]byte, error) {
	if !looksUTF16LE(raw) {
		return raw, nil
	}
	decoder := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
	decoded, _, err := transform.Bytes(decoder, raw)
	if err != nil {
		return nil, err
	}
	return decoded, nil
}

// looksUTF16LE detects the export encoding by BOM, or by the NUL high bytes
// ASCII-heavy UTF-16LE text always carries.
func looksUTF16LE(raw []byte) bool {
	if len(raw) >= 2 && raw[0] == 0xFF && raw[1] == 0xFE {
		return true
	}
	if len(raw) < 4 {
		return false
	}
	sample := raw
	if len(sample) > 256 {
		sample = sample[:256]
	}
	return bytes.Count(sample, []byte{0}) > len(sample)/4
}
