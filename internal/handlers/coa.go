// internal/handlers/coa.go
package handlers

import (
	"context"
	"mime/multipart"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/greenleaf/compliance-engine/internal/i18n"
	"github.com/greenleaf/compliance-engine/internal/services"
	"github.com/greenleaf/compliance-engine/internal/utils"
)

// COAIngester is the part of services.COAService the upload needs.
type COAIngester interface {
	EnsureProduct(ctx context.Context, productID uuid.UUID) error
	IngestCOA(ctx context.Context, productID uuid.UUID, file []byte, mimeType, sourceURL string) (*services.IngestResult, error)
}

// COAStorage is the part of services.StorageService the upload needs.
type COAStorage interface {
	ReadUpload(header *multipart.FileHeader, options services.UploadOptions) ([]byte, string, error)
	Upload(ctx context.Context, fileBytes []byte, filename, contentType string, options services.UploadOptions) (*services.UploadResult, error)
}

type COAHandler struct {
	coaService     COAIngester
	storageService COAStorage
	uploadOptions  services.UploadOptions
}

func NewCOAHandler(coaService COAIngester, storageService COAStorage, maxUploadMB int) *COAHandler {
	return &COAHandler{
		coaService:     coaService,
		storageService: storageService,
		uploadOptions:  services.COAUploadOptions(maxUploadMB),
	}
}

// POST /compliance/products/:id/coa
func (h *COAHandler) UploadCOA(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyCOAFileRequired), nil)
		return
	}

	fileBytes, mimeType, err := h.storageService.ReadUpload(header, h.uploadOptions)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	// nothing is stored for a product that does not exist
	if err := h.coaService.EnsureProduct(c.Request.Context(), id); err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	upload, err := h.storageService.Upload(c.Request.Context(), fileBytes, header.Filename, mimeType, h.uploadOptions)
	if err != nil {
		logrus.WithError(err).WithField("product_id", id).Error("Failed to store COA upload")
		utils.InternalErrorResponse(c, i18n.T(lang, i18n.KeyCOAUploadFailed))
		return
	}

	result, err := h.coaService.IngestCOA(c.Request.Context(), id, fileBytes, mimeType, upload.URL)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"upload": upload,
		"result": result,
	})
}
