package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/username/quantfolio/backend/src/database"
	"github.com/username/quantfolio/backend/src/logger"
	"github.com/username/quantfolio/backend/src/security/validation"
	"github.com/username/quantfolio/backend/src/utils"
)

// DBHandler exposes the persistent store: strategy snapshots and saved
// portfolios that outlive the in-memory refresh cache.
type DBHandler struct{}

func NewDBHandler() *DBHandler {
	return &DBHandler{}
}

func (h *DBHandler) HandleListSnapshots(w http.ResponseWriter, r *http.Request) {
	records, err := database.ListStrategySnapshots()
	if err != nil {
		logger.L.Error("Error listing strategy snapshots", "error", err)
		utils.SendJSONError(w, "An internal error occurred while listing snapshots.", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, records, http.StatusOK)
}

type namePayload struct {
	MagicNumber int    `json:"magic_number"`
	Name        string `json:"name"`
}

// HandleUpsertStrategyName stores a display-name override directly in the
// database.
func (h *DBHandler) HandleUpsertStrategyName(w http.ResponseWriter, r *http.Request) {
	var payload namePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.SendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if payload.MagicNumber == 0 {
		utils.SendJSONError(w, "magic_number must be a non-zero integer", http.StatusBadRequest)
		return
	}
	name := validation.SanitizeForFormulaInjection(validation.StripUnprintable(payload.Name))
	if name == "" {
		utils.SendJSONError(w, "name is required", http.StatusBadRequest)
		return
	}

	if err := database.UpsertStrategyName(payload.MagicNumber, name); err != nil {
		logger.L.Error("Error upserting strategy name", "magicNumber", payload.MagicNumber, "error", err)
		utils.SendJSONError(w, "An internal error occurred while saving the name.", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, map[string]string{"message": "name saved"}, http.StatusOK)
}

// HandleDeleteSnapshot removes a strategy's persisted snapshot and name
// override. The next refresh may recreate the snapshot if the source file is
// still present.
func (h *DBHandler) HandleDeleteSnapshot(w http.ResponseWriter, r *http.Request) {
	magicNumber, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		utils.SendJSONError(w, "id must be an integer", http.StatusBadRequest)
		return
	}
	if err := database.DeleteStrategySnapshot(magicNumber); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			utils.SendJSONError(w, "snapshot not found", http.StatusNotFound)
			return
		}
		logger.L.Error("Error deleting strategy snapshot", "magicNumber", magicNumber, "error", err)
		utils.SendJSONError(w, "An internal error occurred while deleting the snapshot.", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, map[string]string{"message": "snapshot deleted"}, http.StatusOK)
}

type portfolioPayload struct {
	Name           string  `json:"name"`
	TargetDrawdown float64 `json:"target_drawdown"`
	MagicNumbers   []int   `json:"magic_numbers"`
}

func (p *portfolioPayload) validate() (string, bool) {
	name := validation.SanitizeForFormulaInjection(validation.StripUnprintable(p.Name))
	if name == "" {
		return "name is required", false
	}
	if p.TargetDrawdown < 0 {
		return "target_drawdown must not be negative", false
	}
	for _, magic := range p.MagicNumbers {
		if magic == 0 {
			return "magic_numbers must not contain 0", false
		}
	}
	p.Name = name
	return "", true
}

func (h *DBHandler) HandleCreatePortfolio(w http.ResponseWriter, r *http.Request) {
	var payload portfolioPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.SendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if msg, ok := payload.validate(); !ok {
		utils.SendJSONError(w, msg, http.StatusBadRequest)
		return
	}

	id, err := database.CreatePortfolio(payload.Name, payload.TargetDrawdown, payload.MagicNumbers)
	if err != nil {
		logger.L.Error("Error creating portfolio", "name", payload.Name, "error", err)
		utils.SendJSONError(w, "An internal error occurred while creating the portfolio.", http.StatusInternalServerError)
		return
	}

	portfolio, err := database.GetPortfolio(id)
	if err != nil {
		logger.L.Error("Error loading created portfolio", "id", id, "error", err)
		utils.SendJSONError(w, "An internal error occurred while loading the portfolio.", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, portfolio, http.StatusCreated)
}

func (h *DBHandler) HandleListPortfolios(w http.ResponseWriter, r *http.Request) {
	portfolios, err := database.ListPortfolios()
	if err != nil {
		logger.L.Error("Error listing portfolios", "error", err)
		utils.SendJSONError(w, "An internal error occurred while listing portfolios.", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, portfolios, http.StatusOK)
}

func (h *DBHandler) HandleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	portfolio, err := database.GetPortfolio(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			utils.SendJSONError(w, "portfolio not found", http.StatusNotFound)
			return
		}
		logger.L.Error("Error loading portfolio", "id", id, "error", err)
		utils.SendJSONError(w, "An internal error occurred while loading the portfolio.", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, portfolio, http.StatusOK)
}

func (h *DBHandler) HandleUpdatePortfolio(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var payload portfolioPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.SendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if msg, ok := payload.validate(); !ok {
		utils.SendJSONError(w, msg, http.StatusBadRequest)
		return
	}

	if err := database.UpdatePortfolio(id, payload.Name, payload.TargetDrawdown, payload.MagicNumbers); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			utils.SendJSONError(w, "portfolio not found", http.StatusNotFound)
			return
		}
		logger.L.Error("Error updating portfolio", "id", id, "error", err)
		utils.SendJSONError(w, "An internal error occurred while updating the portfolio.", http.StatusInternalServerError)
		return
	}

	portfolio, err := database.GetPortfolio(id)
	if err != nil {
		logger.L.Error("Error loading updated portfolio", "id", id, "error", err)
		utils.SendJSONError(w, "An internal error occurred while loading the portfolio.", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, portfolio, http.StatusOK)
}

func (h *DBHandler) HandleDeletePortfolio(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := database.DeletePortfolio(id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			utils.SendJSONError(w, "portfolio not found", http.StatusNotFound)
			return
		}
		logger.L.Error("Error deleting portfolio", "id", id, "error", err)
		utils.SendJSONError(w, "An internal error occurred while deleting the portfolio.", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, map[string]string{"message": "portfolio deleted"}, http.StatusOK)
}

type membersPayload struct {
	MagicNumbers []int `json:"magic_numbers"`
}

// HandleSetPortfolioStrategies replaces a portfolio's membership.
func (h *DBHandler) HandleSetPortfolioStrategies(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var payload membersPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.SendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	for _, magic := range payload.MagicNumbers {
		if magic == 0 {
			utils.SendJSONError(w, "magic_numbers must not contain 0", http.StatusBadRequest)
			return
		}
	}

	if err := database.SetPortfolioStrategies(id, payload.MagicNumbers); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			utils.SendJSONError(w, "portfolio not found", http.StatusNotFound)
			return
		}
		logger.L.Error("Error setting portfolio strategies", "id", id, "error", err)
		utils.SendJSONError(w, "An internal error occurred while updating the portfolio.", http.StatusInternalServerError)
		return
	}

	portfolio, err := database.GetPortfolio(id)
	if err != nil {
		logger.L.Error("Error loading updated portfolio", "id", id, "error", err)
		utils.SendJSONError(w, "An internal error occurred while loading the portfolio.", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, portfolio, http.StatusOK)
}

func (h *DBHandler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		utils.SendJSONError(w, "id must be an integer", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
