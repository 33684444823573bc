package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/production-planner/internal/http/response"
	"github.com/yungbote/production-planner/internal/production/governance"
)

type CostChecker interface {
	CheckCost(profile string, current, additional float64) governance.Decision
}

type GovernanceHandler struct {
	costs CostChecker
}

func NewGovernanceHandler(costs CostChecker) *GovernanceHandler {
	return &GovernanceHandler{costs: costs}
}

type costCheckRequest struct {
	Profile        string  `json:"profile"`
	CurrentCost    float64 `json:"current_cost"`
	AdditionalCost float64 `json:"additional_cost"`
}

// POST /api/governance/cost-check
//
// A refused check is still a 200; the decision says why.
func (h *GovernanceHandler) CostCheck(c *gin.Context) {
	if _, ok := ownerFrom(c); !ok {
		return
	}
	var req costCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if req.CurrentCost < 0 || req.AdditionalCost < 0 {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", errNegativeCost)
		return
	}
	d := h.costs.CheckCost(req.Profile, req.CurrentCost, req.AdditionalCost)
	response.RespondOK(c, gin.H{"decision": d})
}

var errNegativeCost = errors.New("costs must not be negative")
