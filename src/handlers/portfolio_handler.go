package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/username/quantfolio/backend/src/logger"
	"github.com/username/quantfolio/backend/src/models"
	"github.com/username/quantfolio/backend/src/services"
	"github.com/username/quantfolio/backend/src/utils"
)

type PortfolioHandler struct {
	strategyService  services.StrategyService
	portfolioService services.PortfolioService
}

func NewPortfolioHandler(strategyService services.StrategyService, portfolioService services.PortfolioService) *PortfolioHandler {
	return &PortfolioHandler{
		strategyService:  strategyService,
		portfolioService: portfolioService,
	}
}

type portfolioRequest struct {
	MagicNumbers []int  `json:"magic_numbers"`
	StartDate    string `json:"start_date"` // YYYY-MM-DD, empty = open
	EndDate      string `json:"end_date"`
}

// HandleAggregate combines the selected strategies over a date window. An
// empty selection is not an error; it yields the zeroed result shape.
func (h *PortfolioHandler) HandleAggregate(w http.ResponseWriter, r *http.Request) {
	var req portfolioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	records, err := h.strategyService.GetStrategies()
	if err != nil {
		logger.L.Error("Error loading strategies for portfolio", "error", err)
		utils.SendJSONError(w, "An internal error occurred while loading strategies.", http.StatusInternalServerError)
		return
	}

	selected := make([]models.StrategyRecord, 0, len(req.MagicNumbers))
	byMagic := make(map[int]models.StrategyRecord, len(records))
	for _, record := range records {
		byMagic[record.MagicNumber] = record
	}
	for _, magic := range req.MagicNumbers {
		if record, ok := byMagic[magic]; ok {
			selected = append(selected, record)
		} else {
			logger.L.Warn("Portfolio selection references unknown strategy", "magicNumber", magic)
		}
	}

	result := h.portfolioService.Aggregate(selected, req.StartDate, req.EndDate)
	utils.SendJSON(w, result, http.StatusOK)
}
