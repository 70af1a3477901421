package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/username/quantfolio/backend/src/logger"
	"github.com/username/quantfolio/backend/src/services"
	"github.com/username/quantfolio/backend/src/utils"
)

type StrategyHandler struct {
	strategyService services.StrategyService
}

func NewStrategyHandler(service services.StrategyService) *StrategyHandler {
	return &StrategyHandler{strategyService: service}
}

// HandleGetStrategies returns every reconciled strategy, with ETag support so
// the dashboard can poll cheaply.
func (h *StrategyHandler) HandleGetStrategies(w http.ResponseWriter, r *http.Request) {
	records, err := h.strategyService.GetStrategies()
	if err != nil {
		logger.L.Error("Error loading strategies", "error", err)
		utils.SendJSONError(w, "An internal error occurred while loading strategies.", http.StatusInternalServerError)
		return
	}

	etag, err := utils.GenerateETag(records)
	if err == nil {
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
	}

	utils.SendJSON(w, records, http.StatusOK)
}

func (h *StrategyHandler) HandleGetStrategy(w http.ResponseWriter, r *http.Request) {
	magicNumber, err := strconv.Atoi(r.PathValue("magicNumber"))
	if err != nil {
		utils.SendJSONError(w, "magicNumber must be an integer", http.StatusBadRequest)
		return
	}

	record, err := h.strategyService.GetStrategy(magicNumber)
	if err != nil {
		if errors.Is(err, services.ErrStrategyNotFound) {
			utils.SendJSONError(w, fmt.Sprintf("strategy %d not found", magicNumber), http.StatusNotFound)
			return
		}
		logger.L.Error("Error loading strategy", "magicNumber", magicNumber, "error", err)
		utils.SendJSONError(w, "An internal error occurred while loading the strategy.", http.StatusInternalServerError)
		return
	}

	utils.SendJSON(w, record, http.StatusOK)
}

// HandleRefresh drops the cache and recomputes everything from the source
// files. Overlapping refreshes are safe; last completed wins.
func (h *StrategyHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	h.strategyService.InvalidateCache()
	records, err := h.strategyService.Refresh()
	if err != nil {
		logger.L.Error("Error refreshing strategies", "error", err)
		utils.SendJSONError(w, "An internal error occurred while refreshing strategies.", http.StatusInternalServerError)
		return
	}

	utils.SendJSON(w, map[string]interface{}{
		"message":    "refresh complete",
		"strategies": len(records),
	}, http.StatusOK)
}
