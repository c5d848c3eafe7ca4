// Package docai pulls the text out of uploaded lab documents, remotely with
// Google Document AI or locally from a PDF's embedded text layer.
package docai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// Extractor returns the plain text of a document.
type Extractor interface {
	ExtractText(ctx context.Context, data []byte, mimeType string) (string, error)
}

type Config struct {
	ProjectID        string
	Location         string
	ProcessorID      string
	ProcessorVersion string
	Credentials      string
	Timeout          time.Duration
}

// Enabled reports whether enough is configured to reach a processor.
func (c Config) Enabled() bool {
	return processorName(c.ProjectID, c.Location, c.ProcessorID, c.ProcessorVersion) != ""
}

type DocumentAI struct {
	client  *documentai.DocumentProcessorClient
	name    string
	timeout time.Duration
}

func New(ctx context.Context, cfg Config) (*DocumentAI, error) {
	name := processorName(cfg.ProjectID, cfg.Location, cfg.ProcessorID, cfg.ProcessorVersion)
	if name == "" {
		return nil, errors.New("documentai: project, location and processor are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}

	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.Location)
	opts := append([]option.ClientOption{option.WithEndpoint(endpoint)}, clientOptions(cfg.Credentials)...)
	client, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("documentai client: %w", err)
	}

	logrus.WithField("endpoint", endpoint).Info("Document AI initialized")
	return &DocumentAI{client: client, name: name, timeout: cfg.Timeout}, nil
}

func (d *DocumentAI) Close() error {
	if d == nil || d.client == nil {
		return nil
	}
	return d.client.Close()
}

// ExtractText runs the processor with a bounded timeout. A timed-out call is
// retried once.
func (d *DocumentAI) ExtractText(ctx context.Context, data []byte, mimeType string) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	if mimeType == "" {
		mimeType = "application/pdf"
	}

	req := &documentaipb.ProcessRequest{
		Name: d.name,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  data,
				MimeType: mimeType,
			},
		},
	}

	var err error
	for attempt := 0; attempt < 2; attempt++ {
		var text string
		text, err = d.process(ctx, req)
		if err == nil {
			return text, nil
		}
		if ctx.Err() != nil || !errors.Is(err, context.DeadlineExceeded) {
			break
		}
		logrus.WithField("attempt", attempt+1).Warn("Document AI timed out, retrying")
	}
	return "", err
}

func (d *DocumentAI) process(ctx context.Context, req *documentaipb.ProcessRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	resp, err := d.client.ProcessDocument(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("documentai ProcessDocument: %w", ctx.Err())
		}
		return "", fmt.Errorf("documentai ProcessDocument: %w", err)
	}
	if resp == nil || resp.GetDocument() == nil {
		return "", nil
	}
	return resp.GetDocument().GetText(), nil
}

// clientOptions accepts either inline JSON credentials or a path to a key
// file. Empty means application default credentials.
func clientOptions(creds string) []option.ClientOption {
	creds = strings.TrimSpace(creds)
	if creds == "" {
		return nil
	}
	if strings.HasPrefix(creds, "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return []option.ClientOption{option.WithCredentialsFile(creds)}
}

func processorName(project, location, processorID, version string) string {
	project = strings.TrimSpace(project)
	location = strings.TrimSpace(location)
	processorID = strings.TrimSpace(processorID)
	version = strings.TrimSpace(version)

	if project == "" || location == "" || processorID == "" {
		return ""
	}
	base := fmt.Sprintf("projects/%s/locations/%s/processors/%s", project, location, processorID)
	if version != "" {
		return base + "/processorVersions/" + version
	}
	return base
}
