package enhancement

import (
	"fmt"
	"strings"

	"github.com/medirisk-server/internal/domain"
)

// Fallback reasons reported in metadata
const (
	ReasonNotConfigured       = "not_configured"
	ReasonProviderUnavailable = "provider_unavailable"
	ReasonProviderError       = "provider_error"
	ReasonCircuitOpen         = "circuit_open"
	ReasonRateLimited         = "rate_limited"
	ReasonCancelled           = "cancelled"
	ReasonInvalidRequest      = "invalid_request"
)

var domainTitles = map[string]string{
	domain.DomainCardiovascular: "Cardiovascular Risk Report",
	domain.DomainBreastCancer:   "Breast Tumor Assessment Report",
	domain.DomainFetalHealth:    "Fetal Health (CTG) Report",
}

// FallbackReport renders a deterministic report from the assessment alone.
// The same request always yields the same text.
func FallbackReport(req *domain.EnhancementRequest) string {
	var b strings.Builder

	domainID := ""
	var a *domain.RiskAssessment
	if req != nil {
		domainID = req.Domain
		a = req.Assessment
	}

	title, ok := domainTitles[domainID]
	if !ok {
		title = "Medical Risk Report"
	}
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", len(title)))
	b.WriteString("\n\n")

	if a == nil {
		b.WriteString("No risk assessment was available for this request.\n\n")
		writeDisclaimer(&b)
		return b.String()
	}

	fmt.Fprintf(&b, "Risk level: %s (score %.1f)\n", a.RiskLevel, a.RiskScore)
	if a.RiskCategory != "" {
		fmt.Fprintf(&b, "Category: %s\n", a.RiskCategory)
	}
	if a.Interpretation != "" {
		fmt.Fprintf(&b, "\nSummary\n%s\n", a.Interpretation)
	}

	if a.RiskFactors != nil {
		writeList(&b, "Major risk factors", a.RiskFactors.Major)
		writeList(&b, "Moderate risk factors", a.RiskFactors.Moderate)
		writeList(&b, "Protective factors", a.RiskFactors.Protective)
	}

	if a.TenYearRisk != nil {
		fmt.Fprintf(&b, "\nTen-year risk projection\n%.1f%% - %s\n", a.TenYearRisk.Percentage, a.TenYearRisk.Category)
	}

	writeList(&b, "Recommendations", a.Recommendations)

	if a.LifestyleAdvice != nil {
		writeList(&b, "Diet", a.LifestyleAdvice.Diet)
		writeList(&b, "Exercise", a.LifestyleAdvice.Exercise)
		writeList(&b, "Lifestyle", a.LifestyleAdvice.Lifestyle)
	}

	b.WriteString("\n")
	writeDisclaimer(&b)
	return b.String()
}

func writeList(b *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s\n", heading)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
}

func writeDisclaimer(b *strings.Builder) {
	b.WriteString("This summary was generated automatically from the model assessment without the narrative report service. ")
	b.WriteString("Discuss these results with a qualified clinician before making any decision.\n")
}
