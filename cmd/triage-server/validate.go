package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ehr/triage/internal/config"
	"github.com/ehr/triage/internal/domain/assessment"
	"github.com/ehr/triage/internal/domain/validator"
)

var (
	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42")).
		Bold(true)

	warnStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("214")).
		Bold(true)

	failStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("196")).
		Bold(true)

	headingStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("62")).
		Bold(true).
		Underline(true)
)

// proposal is a clinician edit to check against the generated assessment.
type proposal struct {
	Content assessment.Content `yaml:",inline"`
	Notes   string             `yaml:"notes"`
}

func validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <assessment-file>",
		Short: "Run the safety validator over a generated assessment",
		Long: `Validate a generated assessment offline. The file holds the generator
output as JSON (optionally fenced) or the same document as YAML.

With --proposal, the clinician's modified content and notes (YAML) are
checked against the assessment instead of the original content.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rulesPath, _ := cmd.Flags().GetString("rules")
			proposalPath, _ := cmd.Flags().GetString("proposal")
			format, _ := cmd.Flags().GetString("format")

			rules := validator.DefaultRules()
			if rulesPath != "" {
				data, err := os.ReadFile(rulesPath)
				if err != nil {
					return fmt.Errorf("read rules: %w", err)
				}
				if rules, err = validator.LoadRules(data); err != nil {
					return err
				}
			}

			a, err := loadAssessment(args[0])
			if err != nil {
				return err
			}

			v := validator.New(rules)
			result := v.Validate(a, nil)
			if proposalPath != "" {
				p, err := loadProposal(proposalPath)
				if err != nil {
					return err
				}
				result = v.Check(a, p.Content, p.Notes)
			}

			out := cmd.OutOrStdout()
			switch format {
			case "yaml":
				enc := yaml.NewEncoder(out)
				enc.SetIndent(2)
				if err := enc.Encode(result); err != nil {
					return err
				}
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(result); err != nil {
					return err
				}
			case "text":
				printResult(out, a, result)
			default:
				return fmt.Errorf("unknown format %q (text, yaml, json)", format)
			}

			if result.Recommendation == validator.RecommendDoNotSend {
				return fmt.Errorf("assessment blocked: %s", result.Severity)
			}
			return nil
		},
	}
	cmd.Flags().String("rules", "", "Rules file (YAML) replacing the built-in rules")
	cmd.Flags().String("proposal", "", "Modified content and notes (YAML) to check")
	cmd.Flags().String("format", "text", "Output format: text, yaml or json")
	cmd.SilenceUsage = true
	return cmd
}

// loadAssessment reads generator output from path. YAML documents are
// converted to JSON first so both go through the same parser.
func loadAssessment(path string) (*assessment.Assessment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read assessment: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc map[string]interface{}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode assessment yaml: %w", err)
		}
		if data, err = json.Marshal(doc); err != nil {
			return nil, fmt.Errorf("convert assessment yaml: %w", err)
		}
	}
	return assessment.ParseGenerated(string(data))
}

func loadProposal(path string) (*proposal, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read proposal: %w", err)
	}
	var p proposal
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode proposal: %w", err)
	}
	return &p, nil
}

func printResult(w io.Writer, a *assessment.Assessment, r validator.Result) {
	fmt.Fprintln(w, headingStyle.Render("Validation: "+a.Condition()))
	fmt.Fprintln(w)
	if len(r.Issues) == 0 {
		fmt.Fprintln(w, okStyle.Render("All checks passed"))
	}
	for _, i := range r.Issues {
		fmt.Fprintf(w, "%s %s\n", severityStyle(i.Severity).Render(fmt.Sprintf("[%s]", i.Severity)), i.Message)
		if i.Suggestion != "" {
			fmt.Fprintf(w, "    %s\n", i.Suggestion)
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Severity: %s\n", severityStyle(r.Severity).Render(string(r.Severity)))
	fmt.Fprintf(w, "Recommendation: %s\n", severityStyle(r.Severity).Render(string(r.Recommendation)))
}

func severityStyle(s validator.Severity) lipgloss.Style {
	switch s {
	case validator.SeverityCritical, validator.SeverityHigh:
		return failStyle
	case validator.SeverityMedium, validator.SeverityLow:
		return warnStyle
	default:
		return okStyle
	}
}

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			shown := map[string]interface{}{
				"PORT":                     cfg.Port,
				"ENV":                      cfg.Env,
				"DATABASE_URL":             maskSecret(cfg.DatabaseURL),
				"DB_MAX_CONNS":             cfg.DBMaxConns,
				"DB_MIN_CONNS":             cfg.DBMinConns,
				"CORS_ORIGINS":             cfg.CORSOrigins,
				"AUTH_JWT_SECRET":          maskSecret(cfg.AuthJWTSecret),
				"MAX_TRIAGE_QUESTIONS":     cfg.MaxTriageQuestions,
				"MODIFICATION_TTL":         cfg.ModificationTTL.String(),
				"ASSESSMENT_TTL":           cfg.AssessmentTTL.String(),
				"GENERATOR_TIMEOUT":        cfg.GeneratorTimeout.String(),
				"OPENAI_API_KEY":           maskSecret(cfg.OpenAIAPIKey),
				"OPENAI_MODEL":             cfg.OpenAIModel,
				"MESSAGING_API_URL":        cfg.MessagingAPIURL,
				"MESSAGING_WEBHOOK_SECRET": maskSecret(cfg.MessagingWebhookSecret),
				"PAYMENT_WEBHOOK_SECRET":   maskSecret(cfg.PaymentWebhookSecret),
				"PUBLIC_BASE_URL":          cfg.PublicBaseURL,
				"LOCK_MODE":                cfg.LockMode,
				"AUDIT_SINK":               cfg.AuditSink,
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(shown); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), failStyle.Render("invalid: "+err.Error()))
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("configuration is valid"))
			return nil
		},
	}
}
