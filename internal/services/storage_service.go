// internal/services/storage_service.go
package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/google/uuid"

	"github.com/greenleaf/compliance-engine/internal/apierr"
	"github.com/greenleaf/compliance-engine/internal/config"
	"github.com/greenleaf/compliance-engine/internal/utils"
)

type StorageService struct {
	s3Client *s3.S3
	config   config.AWSConfig
}

type UploadResult struct {
	URL      string `json:"url"`
	Key      string `json:"key"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256"`
}

type UploadOptions struct {
	Folder       string
	MaxSize      int64 // in bytes
	AllowedTypes []string
}

// COAUploadOptions limits certificate uploads to documents and scans.
func COAUploadOptions(maxMB int) UploadOptions {
	if maxMB <= 0 {
		maxMB = 20
	}
	return UploadOptions{
		Folder:       "coa",
		MaxSize:      int64(maxMB) * 1024 * 1024,
		AllowedTypes: []string{".pdf", ".txt", ".png", ".jpg", ".jpeg", ".tif", ".tiff"},
	}
}

func NewStorageService(cfg config.AWSConfig) (*StorageService, error) {
	if cfg.AccessKeyID == "" {
		// Return service without S3 for local development
		return &StorageService{config: cfg}, nil
	}

	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(cfg.Region),
		Credentials: credentials.NewStaticCredentials(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &StorageService{
		s3Client: s3.New(sess),
		config:   cfg,
	}, nil
}

// ReadUpload validates and reads a multipart file. The returned MIME type is
// sniffed from the content when the client did not send a useful one.
func (s *StorageService) ReadUpload(header *multipart.FileHeader, options UploadOptions) ([]byte, string, error) {
	if options.MaxSize > 0 && header.Size > options.MaxSize {
		return nil, "", apierr.Validation(apierr.CodeValidation,
			fmt.Sprintf("file size %d bytes exceeds maximum allowed size %d bytes", header.Size, options.MaxSize))
	}

	if len(options.AllowedTypes) > 0 {
		fileExt := strings.ToLower(filepath.Ext(header.Filename))
		allowed := false
		for _, allowedType := range options.AllowedTypes {
			if fileExt == allowedType {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil, "", apierr.Validation(apierr.CodeValidation, fmt.Sprintf("file type %s is not allowed", fileExt))
		}
	}

	file, err := header.Open()
	if err != nil {
		return nil, "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer file.Close()

	var reader io.Reader = file
	if options.MaxSize > 0 {
		reader = io.LimitReader(file, options.MaxSize+1)
	}
	fileBytes, err := io.ReadAll(reader)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read file: %w", err)
	}
	if options.MaxSize > 0 && int64(len(fileBytes)) > options.MaxSize {
		return nil, "", apierr.Validation(apierr.CodeValidation, "file exceeds maximum allowed size")
	}

	return fileBytes, detectMimeType(header.Header.Get("Content-Type"), header.Filename, fileBytes), nil
}

// Upload stores a certificate under a content-addressed key, so uploading the
// same file twice yields the same object.
func (s *StorageService) Upload(ctx context.Context, fileBytes []byte, filename, contentType string, options UploadOptions) (*UploadResult, error) {
	hash := utils.HashBytes(fileBytes)
	key := s.generateFileName(filename, options.Folder, hash)

	if s.s3Client != nil {
		return s.uploadToS3(ctx, fileBytes, key, contentType, hash)
	}
	return s.uploadToLocal(fileBytes, key, contentType, hash), nil
}

func (s *StorageService) uploadToS3(ctx context.Context, fileBytes []byte, key, contentType, hash string) (*UploadResult, error) {
	params := &s3.PutObjectInput{
		Bucket:        aws.String(s.config.S3Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(fileBytes),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(fileBytes))),
		Metadata:      map[string]*string{"sha256": aws.String(hash)},
	}

	if _, err := s.s3Client.PutObjectWithContext(ctx, params); err != nil {
		return nil, apierr.External(apierr.CodeExternalUnavailable, "failed to upload certificate", err)
	}

	return &UploadResult{
		URL:      s.getS3URL(key),
		Key:      key,
		Size:     int64(len(fileBytes)),
		MimeType: contentType,
		SHA256:   hash,
	}, nil
}

func (s *StorageService) uploadToLocal(fileBytes []byte, key, contentType, hash string) *UploadResult {
	// Without S3 the file is not kept; the URL only identifies it.
	base := strings.TrimRight(s.config.PublicBaseURL, "/")
	if base == "" {
		base = "http://localhost:8080"
	}

	return &UploadResult{
		URL:      fmt.Sprintf("%s/uploads/%s", base, key),
		Key:      key,
		Size:     int64(len(fileBytes)),
		MimeType: contentType,
		SHA256:   hash,
	}
}

func (s *StorageService) generateFileName(originalName, folder, hash string) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	name := hash
	if len(name) > 32 {
		name = name[:32]
	}
	if name == "" {
		name = uuid.New().String()
	}

	filename := name + ext
	if folder != "" {
		return fmt.Sprintf("%s/%s", folder, filename)
	}
	return filename
}

func (s *StorageService) getS3URL(key string) string {
	if s.config.CloudFrontURL != "" {
		return fmt.Sprintf("%s/%s", strings.TrimRight(s.config.CloudFrontURL, "/"), key)
	}

	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s",
		s.config.S3Bucket, s.config.Region, key)
}

func detectMimeType(declared, filename string, data []byte) string {
	if bytes.HasPrefix(data, []byte("%PDF")) {
		return "application/pdf"
	}
	if strings.EqualFold(filepath.Ext(filename), ".txt") {
		return "text/plain"
	}
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	return http.DetectContentType(data)
}
