// internal/handlers/compliance.go
package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/greenleaf/compliance-engine/internal/i18n"
	"github.com/greenleaf/compliance-engine/internal/models"
	"github.com/greenleaf/compliance-engine/internal/services"
	"github.com/greenleaf/compliance-engine/internal/utils"
)

type ComplianceHandler struct {
	complianceService *services.ComplianceService
	auditService      *services.AuditService
}

func NewComplianceHandler(complianceService *services.ComplianceService, auditService *services.AuditService) *ComplianceHandler {
	return &ComplianceHandler{
		complianceService: complianceService,
		auditService:      auditService,
	}
}

type assignCategoryRequest struct {
	Category models.Category `json:"category" binding:"required"`
}

type resolveViolationRequest struct {
	Notes string `json:"notes" validate:"max=2000"`
}

type auditAllRequest struct {
	Limit int `json:"limit" validate:"omitempty,min=1,max=10000"`
}

// GET /compliance/rules
func (h *ComplianceHandler) ListRules(c *gin.Context) {
	rules, err := h.complianceService.ListRules(c.Request.Context())
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, rules)
}

// POST /compliance/rules
func (h *ComplianceHandler) CreateRule(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	var req services.CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	rule, err := h.complianceService.CreateRule(c.Request.Context(), req)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyRuleCreated),
		"rule":    rule,
	})
}

// PUT /compliance/rules/:id
func (h *ComplianceHandler) UpdateRule(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req services.RuleInput
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	rule, err := h.complianceService.UpdateRule(c.Request.Context(), id, req)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyRuleUpdated),
		"rule":    rule,
	})
}

// GET /compliance/products/:id/summary
func (h *ComplianceHandler) GetProductSummary(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	summary, err := h.complianceService.GetProductSummary(c.Request.Context(), id)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, summary)
}

// POST /compliance/products/:id/assign
func (h *ComplianceHandler) AssignCategory(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req assignCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	summary, err := h.complianceService.AssignCategory(c.Request.Context(), id, req.Category)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyProductCategoryAssigned),
		"summary": summary,
	})
}

// POST /compliance/products/:id/reveal
func (h *ComplianceHandler) RevealProduct(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	product, err := h.complianceService.RevealProduct(c.Request.Context(), id, actorFromContext(c))
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyProductRevealed),
		"product": product,
	})
}

// POST /compliance/products/:id/audit
func (h *ComplianceHandler) AuditProduct(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	result, err := h.auditService.AuditProduct(c.Request.Context(), id)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, result)
}

// POST /compliance/audit/all
func (h *ComplianceHandler) AuditAll(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	var req auditAllRequest
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

	summary, err := h.auditService.AuditAll(c.Request.Context(), req.Limit)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, summary)
}

// GET /compliance/audit/logs
func (h *ComplianceHandler) GetAuditLogs(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	params := utils.GetPaginationParams(c)

	filter := models.AuditLogFilter{Page: params.Page, Limit: params.Limit}
	if severity := c.Query("severity"); severity != "" {
		s := models.Severity(severity)
		filter.Severity = &s
	}
	if resolvedStr := c.Query("resolved"); resolvedStr != "" {
		resolved, err := strconv.ParseBool(resolvedStr)
		if err != nil {
			utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "resolved"), nil)
			return
		}
		filter.Resolved = &resolved
	}
	if productIDStr := c.Query("product_id"); productIDStr != "" {
		productID, err := uuid.Parse(productIDStr)
		if err != nil {
			utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "product_id"), nil)
			return
		}
		filter.ProductID = &productID
	}

	logs, total, err := h.auditService.GetAuditLogs(c.Request.Context(), filter)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	result := utils.CreatePaginationResult(logs, total, params)
	utils.PaginatedResponse(c, result)
}

// PATCH /compliance/audit/logs/:id/resolve
func (h *ComplianceHandler) ResolveViolation(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req resolveViolationRequest
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

	entry, err := h.auditService.ResolveViolation(c.Request.Context(), id, actorFromContext(c), req.Notes)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":   i18n.T(lang, i18n.KeyViolationResolved),
		"violation": entry,
	})
}

func parseIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(utils.GetLangFromContext(c), i18n.KeyValidationInvalid, name), nil)
		return uuid.Nil, false
	}
	return id, true
}

// actorFromContext names the administrator for audit fields, preferring the
// username over the opaque user id.
func actorFromContext(c *gin.Context) string {
	if username, ok := c.Get("username"); ok {
		if s, ok := username.(string); ok && s != "" {
			return s
		}
	}
	if userID, ok := utils.GetUserIDFromContext(c); ok {
		return userID
	}
	return ""
}
