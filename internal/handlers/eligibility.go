// internal/handlers/eligibility.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/greenleaf/compliance-engine/internal/services"
	"github.com/greenleaf/compliance-engine/internal/utils"
)

type EligibilityHandler struct {
	eligibilityService *services.EligibilityService
}

func NewEligibilityHandler(eligibilityService *services.EligibilityService) *EligibilityHandler {
	return &EligibilityHandler{eligibilityService: eligibilityService}
}

// GET /eligibility?zip=XXXXX
func (h *EligibilityHandler) CheckEligibility(c *gin.Context) {
	resp, err := h.eligibilityService.CheckEligibility(c.Request.Context(), c.Query("zip"))
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, resp)
}
