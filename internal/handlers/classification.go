// internal/handlers/classification.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/greenleaf/compliance-engine/internal/i18n"
	"github.com/greenleaf/compliance-engine/internal/services"
	"github.com/greenleaf/compliance-engine/internal/utils"
)

type ClassificationHandler struct {
	classifierService *services.ClassifierService
}

func NewClassificationHandler(classifierService *services.ClassifierService) *ClassificationHandler {
	return &ClassificationHandler{classifierService: classifierService}
}

// POST /compliance/products/:id/classify
func (h *ClassificationHandler) ClassifyProduct(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	result, err := h.classifierService.ClassifyProduct(c.Request.Context(), id)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, result)
}

// POST /compliance/classify/bulk
func (h *ClassificationHandler) BulkClassify(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	var req services.BulkClassifyRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
			return
		}
	}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	summary, err := h.classifierService.BulkClassify(c.Request.Context(), req)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, summary)
}
