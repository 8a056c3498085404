package enhancement

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/medirisk-server/internal/domain"
)

// DefaultQuestion is used when the caller did not ask anything specific
const DefaultQuestion = "Could you explain these results in detail?"

const basePrompt = `You are an experienced physician who writes systematic, evidence-based medical reports using the PACE method:
- PLAN: analysis plan and hypotheses
- ANALYZE: data analysis and findings
- CONSTRUCT: structured conclusions
- EXECUTE: recommendations and follow-up plan

Patient data:
%s

Model risk assessment:
%s

Question from the user: %q

TASK: Using the data above, write a professional medical report.
`

var domainPrompts = map[string]string{
	domain.DomainCardiovascular: `CARDIOVASCULAR REPORT:

1. RISK FACTOR ANALYSIS:
   - Age and sex
   - Blood pressure
   - Cholesterol profile
   - Diabetes status

2. CARDIAC RISK SCORES:
   - Framingham Risk Score
   - ASCVD risk estimate
   - European SCORE

3. PREVENTION:
   - Lifestyle changes
   - Diet
   - Exercise program
   - Need for medication

4. FOLLOW-UP PLAN:
   - Visit frequency
   - Laboratory tests
   - Imaging

Write for patient education in a motivating tone.
`,
	domain.DomainBreastCancer: `BREAST CANCER REPORT:

1. MORPHOLOGY:
   - Tumor size and grade
   - Lymph node involvement
   - Histopathological features

2. MOLECULAR MARKERS:
   - ER/PR receptor status
   - HER2 expression
   - Ki-67 proliferation index

3. PROGNOSIS:
   - TNM staging
   - Prognostic factors
   - 5 and 10 year survival

4. TREATMENT OPTIONS:
   - Surgery
   - Adjuvant therapy
   - Targeted therapy

Write in clear and empathetic language.
`,
	domain.DomainFetalHealth: `FETAL HEALTH REPORT:

1. CTG FINDINGS:
   - Baseline fetal heart rate
   - Variability
   - Accelerations and decelerations
   - Uterine contraction pattern

2. FETAL WELLBEING:
   - Normal, suspect or pathological classification
   - Risk of fetal acidosis
   - Intrauterine growth restriction
   - Amniotic fluid abnormalities

3. OBSTETRIC MANAGEMENT:
   - Timing of delivery
   - Mode of delivery
   - Additional monitoring
   - Need for neonatal intensive care

4. COUNSELLING:
   - Warning signs to watch for
   - Visit frequency
   - Lifestyle advice

Write so the expectant mother is informed and reassured.
`,
}

const genericPrompt = `GENERAL MEDICAL REPORT:

1. SUMMARY OF FINDINGS
2. CLINICAL INTERPRETATION
3. RECOMMENDATIONS AND FOLLOW-UP
4. PATIENT EDUCATION

Explain any medical terminology in plain language.
`

// BuildPrompt renders the domain-specific prompt for a request
func BuildPrompt(req *domain.EnhancementRequest) (string, error) {
	raw, err := json.MarshalIndent(req.RawInput, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode patient data: %w", err)
	}
	assessment, err := json.MarshalIndent(req.Assessment, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode risk assessment: %w", err)
	}

	question := strings.TrimSpace(req.Question)
	if question == "" {
		question = DefaultQuestion
	}

	section, ok := domainPrompts[req.Domain]
	if !ok {
		section = genericPrompt
	}

	return fmt.Sprintf(basePrompt, raw, assessment, question) + "\n" + section, nil
}
