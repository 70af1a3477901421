package handlers

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/username/quantfolio/backend/src/config"
	"github.com/username/quantfolio/backend/src/logger"
	"github.com/username/quantfolio/backend/src/security/validation"
	"github.com/username/quantfolio/backend/src/services"
	"github.com/username/quantfolio/backend/src/utils"
)

type UploadHandler struct {
	strategyService services.StrategyService
}

func NewUploadHandler(service services.StrategyService) *UploadHandler {
	return &UploadHandler{strategyService: service}
}

// HandleUploadBacktest stores one backtest report spreadsheet in the data
// directory. The next refresh picks it up.
func (h *UploadHandler) HandleUploadBacktest(w http.ResponseWriter, r *http.Request) {
	file, fileHeader, ok := h.formFile(w, r)
	if !ok {
		return
	}
	defer file.Close()

	clientContentType := fileHeader.Header.Get("Content-Type")
	if err := validation.ValidateXLSXClientContentType(clientContentType); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := validation.ValidateXLSXContent(file); err != nil {
		logger.L.Warn("Backtest upload failed content validation", "filename", fileHeader.Filename, "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	filename := safeFilename(fileHeader.Filename, ".xlsx")
	if err := h.strategyService.StoreBacktestReport(filename, file); err != nil {
		logger.L.Error("Failed to store backtest report", "filename", filename, "error", err)
		utils.SendJSONError(w, "An internal error occurred while storing the report.", http.StatusInternalServerError)
		return
	}

	logger.L.Info("Backtest report stored", "filename", filename)
	utils.SendJSON(w, map[string]string{"message": "report stored", "filename": filename}, http.StatusOK)
}

// HandleUploadForward stores a forward-test execution log, replacing the
// previous one.
func (h *UploadHandler) HandleUploadForward(w http.ResponseWriter, r *http.Request) {
	file, fileHeader, ok := h.formFile(w, r)
	if !ok {
		return
	}
	defer file.Close()

	clientContentType := fileHeader.Header.Get("Content-Type")
	if err := validation.ValidateCSVClientContentType(clientContentType); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := validation.ValidateCSVContent(file); err != nil {
		logger.L.Warn("Forward log upload failed content validation", "filename", fileHeader.Filename, "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	filename := safeFilename(fileHeader.Filename, ".csv")
	if err := h.strategyService.StoreForwardLog(filename, file); err != nil {
		logger.L.Error("Failed to store forward log", "filename", filename, "error", err)
		utils.SendJSONError(w, "An internal error occurred while storing the log.", http.StatusInternalServerError)
		return
	}

	logger.L.Info("Forward log stored", "filename", filename)
	utils.SendJSON(w, map[string]string{"message": "forward log stored", "filename": filename}, http.StatusOK)
}

// HandleSetStrategyName stores a display-name override for a magic number.
func (h *UploadHandler) HandleSetStrategyName(w http.ResponseWriter, r *http.Request) {
	magicNumber, err := strconv.Atoi(r.PathValue("magicNumber"))
	if err != nil || magicNumber == 0 {
		utils.SendJSONError(w, "magicNumber must be a non-zero integer", http.StatusBadRequest)
		return
	}

	if err := r.ParseForm(); err != nil {
		utils.SendJSONError(w, "invalid form body", http.StatusBadRequest)
		return
	}
	name := validation.SanitizeForFormulaInjection(validation.StripUnprintable(r.FormValue("name")))
	if name == "" {
		utils.SendJSONError(w, "name is required", http.StatusBadRequest)
		return
	}

	if err := h.strategyService.SetStrategyName(magicNumber, name); err != nil {
		logger.L.Error("Failed to set strategy name", "magicNumber", magicNumber, "error", err)
		utils.SendJSONError(w, "An internal error occurred while saving the name.", http.StatusInternalServerError)
		return
	}

	utils.SendJSON(w, map[string]string{"message": "name saved"}, http.StatusOK)
}

// HandleUploadStrategy ingests a whole strategy package in one request:
// one or more files under the "files" field (.xlsx report, .html export and
// .png chart images) plus an optional display name.
func (h *UploadHandler) HandleUploadStrategy(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(config.Cfg.MaxUploadSizeBytes); err != nil {
		logger.L.Warn("Failed to parse multipart form or request too large", "error", err, "limit", config.Cfg.MaxUploadSizeBytes)
		utils.SendJSONError(w, fmt.Sprintf("Failed to parse form or request too large (max %d MB)", config.Cfg.MaxUploadSizeBytes/(1024*1024)), http.StatusBadRequest)
		return
	}

	fileHeaders := r.MultipartForm.File["files"]
	if len(fileHeaders) == 0 {
		utils.SendJSONError(w, "at least one file is required in the 'files' field", http.StatusBadRequest)
		return
	}

	var stored []string
	for _, fileHeader := range fileHeaders {
		filename, err := h.storeStrategyFile(fileHeader)
		if err != nil {
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		stored = append(stored, filename)
	}

	// An optional name override rides along with the files.
	if magicStr := r.FormValue("magic_number"); magicStr != "" {
		magicNumber, err := strconv.Atoi(magicStr)
		if err != nil || magicNumber == 0 {
			utils.SendJSONError(w, "magic_number must be a non-zero integer", http.StatusBadRequest)
			return
		}
		name := validation.SanitizeForFormulaInjection(validation.StripUnprintable(r.FormValue("name")))
		if name != "" {
			if err := h.strategyService.SetStrategyName(magicNumber, name); err != nil {
				logger.L.Error("Failed to set strategy name during upload", "magicNumber", magicNumber, "error", err)
				utils.SendJSONError(w, "An internal error occurred while saving the name.", http.StatusInternalServerError)
				return
			}
		}
	}

	logger.L.Info("Strategy package stored", "files", stored)
	utils.SendJSON(w, map[string]interface{}{"message": "strategy stored", "files": stored}, http.StatusOK)
}

// storeStrategyFile routes one package member by extension: spreadsheets to
// the backtest directory, HTML exports and chart images to the report
// directory.
func (h *UploadHandler) storeStrategyFile(fileHeader *multipart.FileHeader) (string, error) {
	if fileHeader.Size > config.Cfg.MaxUploadSizeBytes {
		return "", fmt.Errorf("file %s too large, max %d MB", fileHeader.Filename, config.Cfg.MaxUploadSizeBytes/(1024*1024))
	}

	file, err := fileHeader.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open uploaded file %s", fileHeader.Filename)
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	switch ext {
	case ".xlsx":
		if err := validation.ValidateXLSXContent(file); err != nil {
			return "", err
		}
		filename := safeFilename(fileHeader.Filename, ".xlsx")
		if err := h.strategyService.StoreBacktestReport(filename, file); err != nil {
			return "", fmt.Errorf("failed to store report %s", filename)
		}
		return filename, nil
	case ".html", ".png":
		filename := safeFilename(fileHeader.Filename, ext)
		if err := os.MkdirAll(config.Cfg.ReportHTMLPath, 0o755); err != nil {
			return "", fmt.Errorf("failed to create report directory")
		}
		out, err := os.Create(filepath.Join(config.Cfg.ReportHTMLPath, filename))
		if err != nil {
			return "", fmt.Errorf("failed to store %s", filename)
		}
		defer out.Close()
		if _, err := io.Copy(out, file); err != nil {
			return "", fmt.Errorf("failed to write %s", filename)
		}
		return filename, nil
	default:
		return "", fmt.Errorf("unsupported file type %q in strategy package", ext)
	}
}

func (h *UploadHandler) formFile(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, bool) {
	if err := r.ParseMultipartForm(config.Cfg.MaxUploadSizeBytes); err != nil {
		logger.L.Warn("Failed to parse multipart form or request too large", "error", err, "limit", config.Cfg.MaxUploadSizeBytes)
		utils.SendJSONError(w, fmt.Sprintf("Failed to parse form or request too large (max %d MB)", config.Cfg.MaxUploadSizeBytes/(1024*1024)), http.StatusBadRequest)
		return nil, nil, false
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		logger.L.Warn("Failed to retrieve file from request", "error", err)
		utils.SendJSONError(w, "Failed to retrieve file from request. Ensure 'file' field is used.", http.StatusBadRequest)
		return nil, nil, false
	}

	if fileHeader.Size > config.Cfg.MaxUploadSizeBytes {
		file.Close()
		logger.L.Warn("Uploaded file header reports size too large", "fileSize", fileHeader.Size, "limit", config.Cfg.MaxUploadSizeBytes)
		utils.SendJSONError(w, fmt.Sprintf("File too large, max %d MB", config.Cfg.MaxUploadSizeBytes/(1024*1024)), http.StatusBadRequest)
		return nil, nil, false
	}
	return file, fileHeader, true
}

// safeFilename strips any path components and forces the expected extension.
func safeFilename(name, wantExt string) string {
	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) || base == "" {
		base = "upload" + wantExt
	}
	if filepath.Ext(base) != wantExt {
		base += wantExt
	}
	return base
}
