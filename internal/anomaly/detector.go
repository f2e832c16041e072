// Package anomaly scores certificates along temporal, structural, and
// content dimensions and aggregates the findings into a risk level.
package anomaly

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/clearsure/certledger/internal/models"
)

// maxValidityWindow is the validity span beyond which a certificate is
// considered unusually long-lived.
const maxValidityWindow = 5 * 365 * 24 * time.Hour

// requiredEntities must all be present in the extracted entities of a
// certificate's textual summary.
var requiredEntities = []string{"Certificate", "Date", "Issuer"}

// TextAnalyzer is the external text-analysis collaborator used by the
// content checks.
type TextAnalyzer interface {
	Sentiment(ctx context.Context, text string) (string, error)
	ExtractEntities(ctx context.Context, text string) ([]string, error)
}

// Detector produces anomaly findings for certificate records. It is
// stateless and safe to re-run on the same input.
type Detector struct {
	analyzer TextAnalyzer
}

// NewDetector creates a new detector. The analyzer may be nil, in which case
// content checks are skipped.
func NewDetector(analyzer TextAnalyzer) *Detector {
	return &Detector{analyzer: analyzer}
}

// DetectTemporal checks the certificate's dates against the current time
func (d *Detector) DetectTemporal(cert *models.CertificateRecord) []models.Anomaly {
	return d.detectTemporalAt(cert, time.Now())
}

func (d *Detector) detectTemporalAt(cert *models.CertificateRecord, now time.Time) []models.Anomaly {
	var findings []models.Anomaly

	if cert.IssueDate.After(now) {
		findings = append(findings, models.Anomaly{
			Type:        models.AnomalyTemporal,
			Severity:    models.SeverityHigh,
			Confidence:  0.95,
			Description: "certificate issue date is in the future",
		})
	}

	if cert.ExpiryDate.Before(now) {
		findings = append(findings, models.Anomaly{
			Type:        models.AnomalyTemporal,
			Severity:    models.SeverityMedium,
			Confidence:  0.90,
			Description: "certificate has expired",
		})
	}

	if cert.ExpiryDate.Sub(cert.IssueDate) > maxValidityWindow {
		findings = append(findings, models.Anomaly{
			Type:        models.AnomalyTemporal,
			Severity:    models.SeverityMedium,
			Confidence:  0.80,
			Description: "unusually long validity period",
		})
	}

	return findings
}

// DetectStructural checks the record's shape: id format, seal presence, and
// status value
func (d *Detector) DetectStructural(cert *models.CertificateRecord) []models.Anomaly {
	var findings []models.Anomaly

	if !models.CertificateIDPattern.MatchString(cert.ID) {
		findings = append(findings, models.Anomaly{
			Type:        models.AnomalyStructural,
			Severity:    models.SeverityHigh,
			Confidence:  0.95,
			Description: fmt.Sprintf("certificate id %q does not match the CERT-###### format", cert.ID),
		})
	}

	if cert.Seal == nil {
		findings = append(findings, models.Anomaly{
			Type:        models.AnomalyStructural,
			Severity:    models.SeverityHigh,
			Confidence:  0.90,
			Description: "certificate has no seal",
		})
	}

	if !models.IsKnownStatus(cert.Status) {
		findings = append(findings, models.Anomaly{
			Type:        models.AnomalyStructural,
			Severity:    models.SeverityMedium,
			Confidence:  0.85,
			Description: fmt.Sprintf("unknown certificate status %q", cert.Status),
		})
	}

	return findings
}

// DetectContent delegates sentiment and entity extraction of the record's
// textual summary to the text-analysis collaborator
func (d *Detector) DetectContent(ctx context.Context, summary string) ([]models.Anomaly, error) {
	if d.analyzer == nil || summary == "" {
		return nil, nil
	}

	var findings []models.Anomaly

	label, err := d.analyzer.Sentiment(ctx, summary)
	if err != nil {
		return nil, fmt.Errorf("sentiment analysis failed: %w", err)
	}
	if label == "negative" {
		findings = append(findings, models.Anomaly{
			Type:        models.AnomalyContent,
			Severity:    models.SeverityMedium,
			Confidence:  0.85,
			Description: "negative sentiment in certificate summary",
		})
	}

	entities, err := d.analyzer.ExtractEntities(ctx, summary)
	if err != nil {
		return findings, fmt.Errorf("entity extraction failed: %w", err)
	}

	present := make(map[string]bool, len(entities))
	for _, e := range entities {
		present[e] = true
	}

	var missing []string
	for _, required := range requiredEntities {
		if !present[required] {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		findings = append(findings, models.Anomaly{
			Type:        models.AnomalyContent,
			Severity:    models.SeverityHigh,
			Confidence:  0.90,
			Description: fmt.Sprintf("missing required entities: %s", strings.Join(missing, ", ")),
		})
	}

	return findings, nil
}

// Detect runs all three anomaly categories and aggregates the findings. The
// content check is I/O-bound and runs concurrently with the pure checks; a
// content-check failure is returned alongside the findings from the other
// categories rather than blocking them.
func (d *Detector) Detect(ctx context.Context, cert *models.CertificateRecord, summary string) ([]models.Anomaly, string, error) {
	type contentResult struct {
		findings []models.Anomaly
		err      error
	}

	contentCh := make(chan contentResult, 1)
	go func() {
		findings, err := d.DetectContent(ctx, summary)
		contentCh <- contentResult{findings: findings, err: err}
	}()

	findings := d.DetectTemporal(cert)
	findings = append(findings, d.DetectStructural(cert)...)

	content := <-contentCh
	findings = append(findings, content.findings...)

	return findings, AggregateRisk(findings), content.err
}

// AggregateRisk collapses a set of findings into a single risk level. Each
// anomaly contributes severityWeight * confidence; totals of 5 and 3 are the
// high and medium thresholds.
func AggregateRisk(findings []models.Anomaly) string {
	var total float64
	for _, a := range findings {
		total += float64(severityWeight(a.Severity)) * a.Confidence
	}

	switch {
	case total >= 5:
		return models.RiskHigh
	case total >= 3:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

func severityWeight(severity string) int {
	switch severity {
	case models.SeverityHigh:
		return 3
	case models.SeverityMedium:
		return 2
	default:
		return 1
	}
}
