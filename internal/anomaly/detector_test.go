package anomaly

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/clearsure/certledger/internal/models"
)

// fakeAnalyzer is a canned text-analysis collaborator
type fakeAnalyzer struct {
	sentiment    string
	entities     []string
	sentimentErr error
	entitiesErr  error
}

func (f *fakeAnalyzer) Sentiment(ctx context.Context, text string) (string, error) {
	return f.sentiment, f.sentimentErr
}

func (f *fakeAnalyzer) ExtractEntities(ctx context.Context, text string) ([]string, error) {
	return f.entities, f.entitiesErr
}

func wellFormedCert(now time.Time) *models.CertificateRecord {
	return &models.CertificateRecord{
		ID:         "CERT-123456",
		ClaimID:    "claim-1",
		UserID:     "user-1",
		InsurerID:  "insurer-1",
		Status:     models.StatusValid,
		IssueDate:  now.Add(-time.Hour),
		ExpiryDate: now.Add(30 * 24 * time.Hour),
		Seal: &models.Seal{
			CertificateID: "CERT-123456",
			Timestamp:     now.Add(-time.Hour),
		},
	}
}

func TestDetectTemporal(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	d := NewDetector(nil)

	cases := []struct {
		name         string
		issue        time.Time
		expiry       time.Time
		wantCount    int
		wantSeverity string
	}{
		{"well formed", now.Add(-time.Hour), now.Add(24 * time.Hour), 0, ""},
		{"future issue date", now.Add(time.Hour), now.Add(24 * time.Hour), 1, models.SeverityHigh},
		{"already expired", now.Add(-48 * time.Hour), now.Add(-time.Hour), 1, models.SeverityMedium},
		{"six year window", now.Add(-time.Hour), now.Add(6 * 365 * 24 * time.Hour), 1, models.SeverityMedium},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cert := wellFormedCert(now)
			cert.IssueDate = tc.issue
			cert.ExpiryDate = tc.expiry

			findings := d.detectTemporalAt(cert, now)
			if len(findings) != tc.wantCount {
				t.Fatalf("got %d findings, want %d: %+v", len(findings), tc.wantCount, findings)
			}
			if tc.wantCount > 0 && findings[0].Severity != tc.wantSeverity {
				t.Errorf("severity = %s, want %s", findings[0].Severity, tc.wantSeverity)
			}
			for _, f := range findings {
				if f.Type != models.AnomalyTemporal {
					t.Errorf("type = %s, want temporal", f.Type)
				}
			}
		})
	}
}

func TestDetectTemporalConfidences(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	d := NewDetector(nil)

	cert := wellFormedCert(now)
	cert.IssueDate = now.Add(time.Hour)
	findings := d.detectTemporalAt(cert, now)
	if len(findings) != 1 || findings[0].Confidence != 0.95 {
		t.Errorf("future issue date confidence: got %+v, want one finding at 0.95", findings)
	}

	cert = wellFormedCert(now)
	cert.ExpiryDate = now.Add(-time.Minute)
	findings = d.detectTemporalAt(cert, now)
	if len(findings) != 1 || findings[0].Confidence != 0.90 {
		t.Errorf("expired confidence: got %+v, want one finding at 0.90", findings)
	}

	cert = wellFormedCert(now)
	cert.ExpiryDate = cert.IssueDate.Add(6 * 365 * 24 * time.Hour)
	findings = d.detectTemporalAt(cert, now)
	if len(findings) != 1 || findings[0].Confidence != 0.80 {
		t.Errorf("long validity confidence: got %+v, want one finding at 0.80", findings)
	}
}

func TestDetectStructuralBadID(t *testing.T) {
	// Wrong id format on an otherwise well-formed record: exactly one
	// high-severity structural finding.
	now := time.Now()
	d := NewDetector(nil)

	cert := wellFormedCert(now)
	cert.ID = "CERT-1"

	findings := d.DetectStructural(cert)
	if len(findings) != 1 {
		t.Fatalf("got %d findings, want 1: %+v", len(findings), findings)
	}
	f := findings[0]
	if f.Type != models.AnomalyStructural || f.Severity != models.SeverityHigh || f.Confidence != 0.95 {
		t.Errorf("finding = %+v, want structural/high/0.95", f)
	}
}

func TestDetectStructural(t *testing.T) {
	now := time.Now()
	d := NewDetector(nil)

	cases := []struct {
		name     string
		mutate   func(*models.CertificateRecord)
		severity string
		conf     float64
	}{
		{"missing seal", func(c *models.CertificateRecord) { c.Seal = nil }, models.SeverityHigh, 0.90},
		{"unknown status", func(c *models.CertificateRecord) { c.Status = "suspended" }, models.SeverityMedium, 0.85},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cert := wellFormedCert(now)
			tc.mutate(cert)

			findings := d.DetectStructural(cert)
			if len(findings) != 1 {
				t.Fatalf("got %d findings, want 1: %+v", len(findings), findings)
			}
			if findings[0].Severity != tc.severity || findings[0].Confidence != tc.conf {
				t.Errorf("finding = %+v, want %s/%v", findings[0], tc.severity, tc.conf)
			}
		})
	}

	if findings := d.DetectStructural(wellFormedCert(now)); len(findings) != 0 {
		t.Errorf("well-formed record produced structural findings: %+v", findings)
	}
}

func TestDetectContent(t *testing.T) {
	ctx := context.Background()

	t.Run("negative sentiment", func(t *testing.T) {
		d := NewDetector(&fakeAnalyzer{
			sentiment: "negative",
			entities:  []string{"Certificate", "Date", "Issuer"},
		})
		findings, err := d.DetectContent(ctx, "summary text")
		if err != nil {
			t.Fatalf("DetectContent: %v", err)
		}
		if len(findings) != 1 || findings[0].Severity != models.SeverityMedium || findings[0].Confidence != 0.85 {
			t.Errorf("findings = %+v, want one content/medium/0.85", findings)
		}
	})

	t.Run("missing entities listed by name", func(t *testing.T) {
		d := NewDetector(&fakeAnalyzer{
			sentiment: "neutral",
			entities:  []string{"Certificate"},
		})
		findings, err := d.DetectContent(ctx, "summary text")
		if err != nil {
			t.Fatalf("DetectContent: %v", err)
		}
		if len(findings) != 1 || findings[0].Severity != models.SeverityHigh || findings[0].Confidence != 0.90 {
			t.Fatalf("findings = %+v, want one content/high/0.90", findings)
		}
		desc := findings[0].Description
		if !strings.Contains(desc, "Date") || !strings.Contains(desc, "Issuer") {
			t.Errorf("description %q should list the missing entities", desc)
		}
		if strings.Contains(desc, "Certificate,") {
			t.Errorf("description %q should not list present entities", desc)
		}
	})

	t.Run("nil analyzer skips content checks", func(t *testing.T) {
		d := NewDetector(nil)
		findings, err := d.DetectContent(ctx, "summary text")
		if err != nil || findings != nil {
			t.Errorf("DetectContent = (%+v, %v), want (nil, nil)", findings, err)
		}
	})
}

func TestDetectJoinsConcurrentContent(t *testing.T) {
	now := time.Now()
	d := NewDetector(&fakeAnalyzer{
		sentiment: "negative",
		entities:  []string{"Certificate", "Date", "Issuer"},
	})

	findings, risk, err := d.Detect(context.Background(), wellFormedCert(now), "summary text")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("got %d findings, want 1: %+v", len(findings), findings)
	}
	if findings[0].Type != models.AnomalyContent {
		t.Errorf("finding type = %s, want content", findings[0].Type)
	}
	if risk != models.RiskLow {
		t.Errorf("risk = %s, want low (single medium finding weighs 1.7)", risk)
	}
}

func TestDetectSurvivesAnalyzerOutage(t *testing.T) {
	now := time.Now()
	d := NewDetector(&fakeAnalyzer{sentimentErr: errors.New("service down")})

	cert := wellFormedCert(now)
	cert.Seal = nil

	findings, risk, err := d.Detect(context.Background(), cert, "summary text")
	if err == nil {
		t.Error("expected the analyzer error to be surfaced")
	}
	// Pure checks still score
	if len(findings) != 1 || findings[0].Type != models.AnomalyStructural {
		t.Fatalf("findings = %+v, want the structural finding", findings)
	}
	if risk != models.RiskLow {
		t.Errorf("risk = %s, want low", risk)
	}
}

func TestAggregateRisk(t *testing.T) {
	cases := []struct {
		name     string
		findings []models.Anomaly
		want     string
	}{
		{"no findings", nil, models.RiskLow},
		{
			// 3*0.95 + 2*0.90 = 4.65
			"worked example medium",
			[]models.Anomaly{
				{Severity: models.SeverityHigh, Confidence: 0.95},
				{Severity: models.SeverityMedium, Confidence: 0.90},
			},
			models.RiskMedium,
		},
		{
			// 4.65 + 3*0.9 = 7.35
			"worked example high",
			[]models.Anomaly{
				{Severity: models.SeverityHigh, Confidence: 0.95},
				{Severity: models.SeverityMedium, Confidence: 0.90},
				{Severity: models.SeverityHigh, Confidence: 0.90},
			},
			models.RiskHigh,
		},
		{
			"low severities stay low",
			[]models.Anomaly{
				{Severity: models.SeverityLow, Confidence: 1.0},
				{Severity: models.SeverityLow, Confidence: 1.0},
			},
			models.RiskLow,
		},
		{
			// 2*1.0 + 1*1.0 = 3.0, exactly the medium threshold
			"medium boundary inclusive",
			[]models.Anomaly{
				{Severity: models.SeverityMedium, Confidence: 1.0},
				{Severity: models.SeverityLow, Confidence: 1.0},
			},
			models.RiskMedium,
		},
		{
			// 3*1.0 + 2*1.0 = 5.0, exactly the high threshold
			"high boundary inclusive",
			[]models.Anomaly{
				{Severity: models.SeverityHigh, Confidence: 1.0},
				{Severity: models.SeverityMedium, Confidence: 1.0},
			},
			models.RiskHigh,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := AggregateRisk(tc.findings); got != tc.want {
				t.Errorf("AggregateRisk = %s, want %s", got, tc.want)
			}
		})
	}
}
