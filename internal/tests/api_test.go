// internal/tests/api_test.go
package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/greenleaf/compliance-engine/internal/config"
	"github.com/greenleaf/compliance-engine/internal/database"
	"github.com/greenleaf/compliance-engine/internal/i18n"
	"github.com/greenleaf/compliance-engine/internal/llm"
	"github.com/greenleaf/compliance-engine/internal/metrics"
	"github.com/greenleaf/compliance-engine/internal/models"
	"github.com/greenleaf/compliance-engine/internal/router"
	"github.com/greenleaf/compliance-engine/internal/services"
	"github.com/greenleaf/compliance-engine/internal/store"
	"github.com/greenleaf/compliance-engine/internal/utils"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type APITestSuite struct {
	suite.Suite
	ctx        context.Context
	cancel     context.CancelFunc
	catalog    *store.MemoryCatalog
	router     *gin.Engine
	adminToken string
	userToken  string
}

func (s *APITestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
	s.Require().NoError(i18n.Initialize("en"))
}

func (s *APITestSuite) SetupTest() {
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.catalog = store.NewMemoryCatalog()
	_, err := database.SeedRules(s.ctx, s.catalog)
	s.Require().NoError(err)

	cfg := &config.Config{
		Environment: "test",
		Server:      config.ServerConfig{RateLimitPerMinute: 1000},
		JWT:         config.JWTConfig{SecretKey: "test-secret"},
		AWS:         config.AWSConfig{PublicBaseURL: "https://compliance.test"},
		Compliance:  config.ComplianceConfig{KeywordShortCircuit: 1.0, MaxCOAUploadMB: 1},
		I18n:        config.I18nConfig{DefaultLocale: "en"},
		CORS:        config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	completion := llm.ClientFunc(func(context.Context, string, string, string, map[string]any) (json.RawMessage, error) {
		return nil, errors.New("completion disabled in tests")
	})
	storage, err := services.NewStorageService(cfg.AWS)
	s.Require().NoError(err)

	rules := services.NewRuleCatalog(s.catalog, m)
	classifier := services.NewClassifierService(s.catalog, rules, completion, services.ClassifierConfig{KeywordShortCircuit: 1.0}, m)
	s.router = router.Initialize(s.ctx, cfg, router.Services{
		Eligibility:    services.NewEligibilityService(store.NewMemoryZipStore(database.SampleZipCodes()...), rules, m),
		Classifier:     classifier,
		COA:            services.NewCOAService(s.catalog, nil, completion, m),
		Compliance:     services.NewComplianceService(s.catalog, rules),
		Audit:          services.NewAuditService(s.catalog, rules, classifier, 2, 100, m),
		Storage:        storage,
		RequestLog:     s.catalog,
		Metrics:        m,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})

	s.adminToken, err = utils.SignJWT("admin-1", "compliance.lead", utils.UserTypeAdmin, time.Hour)
	s.Require().NoError(err)
	s.userToken, err = utils.SignJWT("user-7", "shopper", "customer", time.Hour)
	s.Require().NoError(err)
}

func (s *APITestSuite) TearDownTest() {
	s.cancel()
}

func (s *APITestSuite) do(method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return s.serve(req)
}

func (s *APITestSuite) serve(req *http.Request) (*httptest.ResponseRecorder, envelope) {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func (s *APITestSuite) TestHealthAndMetrics() {
	w, _ := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(s.T(), http.StatusOK, w.Code)
	assert.Contains(s.T(), w.Body.String(), "healthy")

	s.do(http.MethodGet, "/v1/eligibility?zip=73301", "", nil)
	w, _ = s.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(s.T(), http.StatusOK, w.Code)
	assert.Contains(s.T(), w.Body.String(), "compliance_eligibility_checks_total")
}

func (s *APITestSuite) TestEligibility() {
	w, env := s.do(http.MethodGet, "/v1/eligibility?zip=84101", "", nil)
	s.Require().Equal(http.StatusOK, w.Code)

	var resp services.EligibilityResponse
	s.Require().NoError(json.Unmarshal(env.Data, &resp))
	assert.Equal(s.T(), "UT", resp.State)
	assert.Contains(s.T(), resp.RestrictedCategories, models.CategoryNicotine)
	s.Require().NotNil(resp.ShippingRestrictions.MaxQuantityPerOrder)
	assert.Equal(s.T(), 2, *resp.ShippingRestrictions.MaxQuantityPerOrder)

	w, env = s.do(http.MethodGet, "/v1/eligibility?zip=abc12", "", nil)
	assert.Equal(s.T(), http.StatusBadRequest, w.Code)
	s.Require().NotNil(env.Error)
	assert.Equal(s.T(), "INVALID_ZIP", env.Error.Code)

	w, env = s.do(http.MethodGet, "/v1/eligibility?zip=99999", "", nil)
	assert.Equal(s.T(), http.StatusNotFound, w.Code)
	assert.Equal(s.T(), "ZIP_NOT_FOUND", env.Error.Code)
}

func (s *APITestSuite) TestEligibilityLocalizedError() {
	req := httptest.NewRequest(http.MethodGet, "/v1/eligibility?zip=1", nil)
	req.Header.Set("Accept-Language", "es-MX,es;q=0.9")
	_, env := s.serve(req)
	s.Require().NotNil(env.Error)
	assert.Equal(s.T(), i18n.T("es", i18n.KeyEligibilityInvalidZip), env.Error.Message)
	assert.NotEqual(s.T(), i18n.T("en", i18n.KeyEligibilityInvalidZip), env.Error.Message)
}

func (s *APITestSuite) TestUnknownRouteIsLocalized() {
	req := httptest.NewRequest(http.MethodGet, "/v1/does-not-exist", nil)
	req.Header.Set("Accept-Language", "es")
	w, env := s.serve(req)
	assert.Equal(s.T(), http.StatusNotFound, w.Code)
	s.Require().NotNil(env.Error)
	assert.Equal(s.T(), "NOT_FOUND", env.Error.Code)
	assert.Equal(s.T(), i18n.T("es", i18n.KeyRouteNotFound), env.Error.Message)
}

func (s *APITestSuite) TestComplianceRoutesRequireAdmin() {
	w, env := s.do(http.MethodGet, "/v1/compliance/rules", "", nil)
	assert.Equal(s.T(), http.StatusUnauthorized, w.Code)
	assert.False(s.T(), env.Success)

	w, _ = s.do(http.MethodGet, "/v1/compliance/rules", "not-a-jwt", nil)
	assert.Equal(s.T(), http.StatusUnauthorized, w.Code)

	w, _ = s.do(http.MethodGet, "/v1/compliance/rules", s.userToken, nil)
	assert.Equal(s.T(), http.StatusForbidden, w.Code)

	w, env = s.do(http.MethodGet, "/v1/compliance/rules", s.adminToken, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var listed []models.ComplianceRule
	s.Require().NoError(json.Unmarshal(env.Data, &listed))
	assert.Equal(s.T(), "nicotine_obvious", listed[0].Name)
}

func (s *APITestSuite) TestRuleLifecycle() {
	body := map[string]interface{}{
		"name":              "amanita",
		"category":          "other",
		"keywords":          []string{"Amanita"},
		"action":            "restrict",
		"priority":          60,
		"restricted_states": []string{"la"},
	}
	w, env := s.do(http.MethodPost, "/v1/compliance/rules", s.adminToken, body)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		Rule models.ComplianceRule `json:"rule"`
	}
	s.Require().NoError(json.Unmarshal(env.Data, &created))
	assert.Equal(s.T(), []string{"LA"}, []string(created.Rule.RestrictedStates))

	w, env = s.do(http.MethodPost, "/v1/compliance/rules", s.adminToken, body)
	assert.Equal(s.T(), http.StatusConflict, w.Code)
	assert.Equal(s.T(), "DUPLICATE_RULE", env.Error.Code)

	body["priority"] = 5000
	w, _ = s.do(http.MethodPut, fmt.Sprintf("/v1/compliance/rules/%s", created.Rule.ID), s.adminToken, body)
	assert.Equal(s.T(), http.StatusBadRequest, w.Code)

	body["priority"] = 10
	w, _ = s.do(http.MethodPut, fmt.Sprintf("/v1/compliance/rules/%s", created.Rule.ID), s.adminToken, body)
	assert.Equal(s.T(), http.StatusOK, w.Code)

	body["category"] = "kratom"
	w, env = s.do(http.MethodPut, fmt.Sprintf("/v1/compliance/rules/%s", created.Rule.ID), s.adminToken, body)
	assert.Equal(s.T(), http.StatusConflict, w.Code)
	assert.Equal(s.T(), "RULE_CATEGORY_LOCKED", env.Error.Code)
	body["category"] = "other"

	w, _ = s.do(http.MethodPut, "/v1/compliance/rules/not-a-uuid", s.adminToken, body)
	assert.Equal(s.T(), http.StatusBadRequest, w.Code)

	logs := s.catalog.RequestLogs()
	s.Require().NotEmpty(logs)
	assert.Equal(s.T(), "POST /v1/compliance/rules", logs[0].Action)
	assert.Equal(s.T(), "rules", logs[0].ResourceType)
	s.Require().NotNil(logs[0].UserID)
	assert.Equal(s.T(), "admin-1", *logs[0].UserID)
}

func (s *APITestSuite) TestClassifyRevealAndAudit() {
	vape := s.catalog.PutProduct(models.Product{Name: "Premium Nicotine Vape Pen", VisibleOnMainSite: true})

	w, env := s.do(http.MethodPost, fmt.Sprintf("/v1/compliance/products/%s/classify", vape.ID), s.adminToken, nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var classified services.ClassificationResult
	s.Require().NoError(json.Unmarshal(env.Data, &classified))
	assert.Equal(s.T(), services.SourceKeyword, classified.Source)
	assert.False(s.T(), classified.VisibleOnMainSite)

	w, env = s.do(http.MethodPost, fmt.Sprintf("/v1/compliance/products/%s/reveal", vape.ID), s.adminToken, nil)
	assert.Equal(s.T(), http.StatusConflict, w.Code)
	assert.Equal(s.T(), "REVEAL_NOT_PERMITTED", env.Error.Code)

	// Without a completion service only keyword-certain products classify.
	tea := s.catalog.PutProduct(models.Product{Name: "Blue Lotus Tea", VisibleOnMainSite: true})
	w, env = s.do(http.MethodPost, fmt.Sprintf("/v1/compliance/products/%s/classify", tea.ID), s.adminToken, nil)
	assert.Equal(s.T(), http.StatusBadGateway, w.Code)
	assert.Equal(s.T(), "CLASSIFICATION_FAILED", env.Error.Code)

	pods := s.catalog.PutProduct(models.Product{Name: "Salt Nic Pods", VisibleOnMainSite: true})
	w, env = s.do(http.MethodPost, fmt.Sprintf("/v1/compliance/products/%s/audit", pods.ID), s.adminToken, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var audit services.ProductAuditResult
	s.Require().NoError(json.Unmarshal(env.Data, &audit))
	s.Require().Len(audit.Violations, 3)

	w, env = s.do(http.MethodGet, "/v1/compliance/audit/logs?severity=high&resolved=false&limit=1", s.adminToken, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	assert.Equal(s.T(), "2", w.Header().Get("X-Total-Count"))
	var page []models.ComplianceAuditLog
	s.Require().NoError(json.Unmarshal(env.Data, &page))
	s.Require().Len(page, 1)

	resolvePath := fmt.Sprintf("/v1/compliance/audit/logs/%s/resolve", page[0].ID)
	w, env = s.do(http.MethodPatch, resolvePath, s.adminToken, map[string]string{"notes": "relisted hidden"})
	s.Require().Equal(http.StatusOK, w.Code)
	var resolved struct {
		Violation models.ComplianceAuditLog `json:"violation"`
	}
	s.Require().NoError(json.Unmarshal(env.Data, &resolved))
	s.Require().NotNil(resolved.Violation.ResolvedBy)
	assert.Equal(s.T(), "compliance.lead", *resolved.Violation.ResolvedBy)

	w, env = s.do(http.MethodPatch, resolvePath, s.adminToken, nil)
	assert.Equal(s.T(), http.StatusConflict, w.Code)
	assert.Equal(s.T(), "ALREADY_RESOLVED", env.Error.Code)

	w, env = s.do(http.MethodGet, "/v1/compliance/audit/logs?resolved=maybe", s.adminToken, nil)
	assert.Equal(s.T(), http.StatusBadRequest, w.Code)
}

func (s *APITestSuite) TestAssignSummaryAndBulk() {
	leaf := s.catalog.PutProduct(models.Product{Name: "Green Vein Leaf", VisibleOnMainSite: true})

	w, _ := s.do(http.MethodPost, fmt.Sprintf("/v1/compliance/products/%s/assign", leaf.ID), s.adminToken, map[string]string{"category": "kratom"})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	w, env := s.do(http.MethodGet, fmt.Sprintf("/v1/compliance/products/%s/summary", leaf.ID), s.adminToken, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var summary services.ProductSummary
	s.Require().NoError(json.Unmarshal(env.Data, &summary))
	assert.False(s.T(), summary.Product.VisibleOnMainSite)
	s.Require().Len(summary.Rules, 1)
	assert.Equal(s.T(), "kratom", summary.Rules[0].Name)

	w, _ = s.do(http.MethodGet, fmt.Sprintf("/v1/compliance/products/%s/summary", uuid.New()), s.adminToken, nil)
	assert.Equal(s.T(), http.StatusNotFound, w.Code)

	w, env = s.do(http.MethodPost, "/v1/compliance/classify/bulk", s.adminToken, map[string]interface{}{"limit": 10})
	s.Require().Equal(http.StatusOK, w.Code)
	var bulk services.BulkSummary
	s.Require().NoError(json.Unmarshal(env.Data, &bulk))
	assert.Equal(s.T(), 1, bulk.Processed)
	assert.Equal(s.T(), 1, bulk.Errors)

	w, _ = s.do(http.MethodPost, "/v1/compliance/classify/bulk", s.adminToken, map[string]interface{}{"limit": 10000})
	assert.Equal(s.T(), http.StatusBadRequest, w.Code)

	w, env = s.do(http.MethodPost, "/v1/compliance/audit/all", s.adminToken, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var all services.AuditAllSummary
	s.Require().NoError(json.Unmarshal(env.Data, &all))
	assert.Equal(s.T(), 1, all.Audited)
}

func (s *APITestSuite) TestCOAUpload() {
	product := s.catalog.PutProduct(models.Product{Name: "THCA Flower", RequiresLabTest: true})

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", "coa.txt")
	s.Require().NoError(err)
	_, err = part.Write([]byte("Batch #: GL-77\nLab: Pinnacle Labs\nTested 2024-03-14\nTHCA: 22.5%"))
	s.Require().NoError(err)
	s.Require().NoError(form.Close())

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/v1/compliance/products/%s/coa", product.ID), &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.adminToken)
	w, env := s.serve(req)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	var out struct {
		Upload services.UploadResult `json:"upload"`
		Result services.IngestResult `json:"result"`
	}
	s.Require().NoError(json.Unmarshal(env.Data, &out))
	assert.True(s.T(), strings.HasPrefix(out.Upload.URL, "https://compliance.test/uploads/coa/"))
	s.Require().NotNil(out.Result.ExtractedData.BatchNumber)
	assert.Equal(s.T(), "GL-77", *out.Result.ExtractedData.BatchNumber)
	assert.False(s.T(), out.Result.ExtractedData.IsValid)

	stored, err := s.catalog.GetProduct(s.ctx, product.ID)
	s.Require().NoError(err)
	assert.False(s.T(), stored.RequiresLabTest)
	s.Require().NotNil(stored.LabTestURL)
	assert.Equal(s.T(), out.Upload.URL, *stored.LabTestURL)

	for _, logEntry := range s.catalog.RequestLogs() {
		assert.Empty(s.T(), logEntry.NewValues, "multipart bodies are not copied into the request trail")
	}
}

func (s *APITestSuite) TestCOAUploadRejectsMissingFile() {
	product := s.catalog.PutProduct(models.Product{Name: "THCA Flower"})
	w, env := s.do(http.MethodPost, fmt.Sprintf("/v1/compliance/products/%s/coa", product.ID), s.adminToken, map[string]string{})
	assert.Equal(s.T(), http.StatusBadRequest, w.Code)
	assert.Equal(s.T(), i18n.T("en", i18n.KeyCOAFileRequired), env.Error.Message)
}

func TestAPITestSuite(t *testing.T) {
	suite.Run(t, new(APITestSuite))
}
