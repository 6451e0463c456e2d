package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/triage/internal/config"
	"github.com/ehr/triage/internal/platform/audit"
	"github.com/ehr/triage/internal/platform/auth"
	"github.com/ehr/triage/internal/platform/llm"
	"github.com/ehr/triage/internal/platform/messaging"
)

const testSecret = "0123456789abcdef0123456789abcdef"

const sampleAssessment = `{
  "symptoms_overview": {"primary_symptoms": ["headache", "fever"], "severity_rating": 5, "duration": "2 days"},
  "key_observations": {"likely_condition": "Viral fever", "differential_diagnoses": ["Flu"], "notes": "Otherwise well."},
  "preliminary_recommendations": {"lifestyle_changes": ["Rest", "Drink 2-3L water daily"]},
  "otc_suggestions": {"medications": [{"name": "Paracetamol", "dosage": "500mg", "frequency": "3-4 times daily"}]},
  "monitoring_advice": {"what_to_monitor": ["Temperature"], "when_to_seek_help": ["Difficulty breathing or chest pain"]},
  "red_flags_detected": [],
  "confidence_score": 0.8
}`

func testConfig() *config.Config {
	return &config.Config{
		Env:                "development",
		CORSOrigins:        []string{"http://localhost:3000"},
		RateLimitRPS:       100,
		RateLimitBurst:     100,
		MaxTriageQuestions: 3,
		ModificationTTL:    time.Hour,
		AssessmentTTL:      72 * time.Hour,
		GeneratorTimeout:   time.Second,
		SenderRateRPS:      100,
		SenderRateBurst:    100,
		PublicBaseURL:      "http://localhost:8000",
		LockMode:           "memory",
		AuditSink:          "log",
	}
}

func newTestApp(t *testing.T, cfg *config.Config) (*app, *messaging.Mock) {
	t.Helper()
	ch := messaging.NewMock()
	gen := &llm.Mock{AssessmentText: sampleAssessment}
	a, err := newApp(cfg, memoryStorage(&audit.Memory{}), externals{
		channel:     ch,
		generator:   gen,
		transcriber: gen,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	return a, ch
}

func TestHealth(t *testing.T) {
	a, _ := newTestApp(t, testConfig())
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	a.echo.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), version) {
		t.Errorf("expected version in body, got %s", rec.Body.String())
	}
}

func TestMessagingWebhook_GreetsNewPatient(t *testing.T) {
	a, ch := newTestApp(t, testConfig())
	form := url.Values{"From": {"whatsapp:+15550001111"}, "Body": {"hello"}, "MessageSid": {"SM1"}}
	req := httptest.NewRequest(http.MethodPost, "/webhooks/messaging", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	a.echo.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(ch.Last("+15550001111"), "GET STARTED") {
		t.Errorf("expected agreement prompt, got %q", ch.Last("+15550001111"))
	}
}

func TestAPI_DevIdentity(t *testing.T) {
	a, _ := newTestApp(t, testConfig())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/clinicians", nil)
	rec := httptest.NewRecorder()
	a.echo.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 with development identity, got %d", rec.Code)
	}
}

func TestAPI_RequiresToken(t *testing.T) {
	cfg := testConfig()
	cfg.Env = "production"
	cfg.AuthJWTSecret = testSecret
	a, _ := newTestApp(t, cfg)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/clinicians", nil)
	rec := httptest.NewRecorder()
	a.echo.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	token, err := auth.IssueToken(auth.JWTConfig{Issuer: "triage", SigningKey: []byte(testSecret)}, "ops-1", "", []string{auth.RoleOperator}, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/api/v1/clinicians", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	a.echo.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 with token, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestNewApp_RejectsMissingSecretOutsideDev(t *testing.T) {
	cfg := testConfig()
	cfg.Env = "production"
	_, err := newApp(cfg, memoryStorage(&audit.Memory{}), externals{
		channel:   messaging.NewMock(),
		generator: &llm.Mock{},
	}, zerolog.Nop())
	if err == nil {
		t.Error("expected an error without AUTH_JWT_SECRET in production")
	}
}

func TestValidateCmd_JSONAndYAML(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "case.json")
	if err := os.WriteFile(jsonPath, []byte("```json\n"+sampleAssessment+"\n```"), 0o600); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	cmd := validateCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{jsonPath, "--format", "yaml"})
	err := cmd.Execute()
	if err != nil && !strings.Contains(err.Error(), "blocked") {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "recommendation:") {
		t.Errorf("expected yaml result, got %s", out.String())
	}

	yamlPath := filepath.Join(dir, "case.yaml")
	doc := `symptoms_overview:
  primary_symptoms: [headache]
  severity_rating: 4
  duration: 1 day
key_observations:
  likely_condition: Tension headache
preliminary_recommendations:
  lifestyle_changes: [Rest in a quiet room]
otc_suggestions:
  medications: []
monitoring_advice:
  what_to_monitor: [Pain level]
  when_to_seek_help: [Sudden severe headache]
confidence_score: 0.7
`
	if err := os.WriteFile(yamlPath, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	a, err := loadAssessment(yamlPath)
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}
	if a.Condition() != "Tension headache" {
		t.Errorf("expected Tension headache, got %q", a.Condition())
	}
	if len(a.Recommendations.Items) != 1 {
		t.Errorf("expected 1 recommendation, got %d", len(a.Recommendations.Items))
	}
}

func TestValidateCmd_UnknownFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "case.json")
	if err := os.WriteFile(path, []byte(sampleAssessment), 0o600); err != nil {
		t.Fatal(err)
	}
	cmd := validateCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{path, "--format", "xml"})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "unknown format") {
		t.Errorf("expected unknown format error, got %v", err)
	}
}

func TestTokenCmd(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/triage")
	t.Setenv("AUTH_JWT_SECRET", testSecret)

	var out bytes.Buffer
	cmd := tokenCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--subject", "ops-1", "--role", "operator"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("token: %v", err)
	}
	if parts := strings.Split(strings.TrimSpace(out.String()), "."); len(parts) != 3 {
		t.Errorf("expected a JWT, got %q", out.String())
	}
}

func TestMaskSecret(t *testing.T) {
	if got := maskSecret("abc"); got != "***" {
		t.Errorf("expected ***, got %q", got)
	}
	if got := maskSecret("sk-123456"); got != "sk*****56" {
		t.Errorf("expected sk*****56, got %q", got)
	}
}
