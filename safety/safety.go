// Package safety implements the SafetyScreener capability (C8): regex
// pattern sets over crisis, medical-advice, and trigger-topic language,
// plus disclaimer suggestion. Grounded verbatim on
// original_source/.../app/services/safety.py (CRISIS_PATTERNS,
// MEDICAL_PATTERNS, TRIGGER_PATTERNS, and the two disclaimer texts); no
// ecosystem library screens content this way, so this is justified
// stdlib-only regexp, documented in DESIGN.md.
package safety

import (
	"regexp"
	"strconv"
	"strings"
)

// Flag enumerates the safety concern types.
type Flag string

const (
	FlagCrisisLanguage   Flag = "crisis_language"
	FlagMedicalAdvice    Flag = "medical_advice"
	FlagSuicideMention   Flag = "suicide_mention"
	FlagSelfHarm         Flag = "self_harm"
	FlagDrugRecommendation Flag = "drug_recommendation"
	FlagDiagnosisClaim   Flag = "diagnosis_claim"
	FlagTherapySubstitute Flag = "therapy_substitute"
	FlagTriggerContent   Flag = "trigger_content"
)

// Severity enumerates finding severities, low to critical.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Finding is a single safety concern located in content.
type Finding struct {
	Flag           Flag     `json:"flag"`
	Severity       Severity `json:"severity"`
	Location       string   `json:"location"`
	MatchedText    string   `json:"matched_text"`
	Recommendation string   `json:"recommendation"`
}

// Result is the SafetyScreener capability's output.
type Result struct {
	IsSafe              bool      `json:"is_safe"`
	Findings            []Finding `json:"findings"`
	RequiresDisclaimer  bool      `json:"requires_disclaimer"`
	SuggestedDisclaimer string    `json:"suggested_disclaimer,omitempty"`
}

// CriticalFindings returns only critical/high severity findings.
func (r Result) CriticalFindings() []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Severity == SeverityHigh || f.Severity == SeverityCritical {
			out = append(out, f)
		}
	}
	return out
}

type patternRule struct {
	pattern  *regexp.Regexp
	flag     Flag
	severity Severity
}

var crisisPatterns = []patternRule{
	{regexp.MustCompile(`(?i)\b(kill|end)\s+(my|your)?self\b`), FlagSuicideMention, SeverityCritical},
	{regexp.MustCompile(`(?i)\b(suicide|suicidal)\b`), FlagSuicideMention, SeverityHigh},
	{regexp.MustCompile(`(?i)\b(cut|cutting|hurt)\s+(my|your)?self\b`), FlagSelfHarm, SeverityHigh},
	{regexp.MustCompile(`(?i)\bself[\s-]?harm\b`), FlagSelfHarm, SeverityHigh},
	{regexp.MustCompile(`(?i)\bwant\s+to\s+die\b`), FlagCrisisLanguage, SeverityCritical},
	{regexp.MustCompile(`(?i)\b(no|not)\s+worth\s+living\b`), FlagCrisisLanguage, SeverityHigh},
}

var medicalPatterns = []patternRule{
	{regexp.MustCompile(`(?i)\byou\s+should\s+(take|start|stop)\s+\w*\s*(medication|medicine|drug|pill)`), FlagDrugRecommendation, SeverityHigh},
	{regexp.MustCompile(`(?i)\b(increase|decrease|adjust)\s+your\s+(dose|dosage|medication)`), FlagDrugRecommendation, SeverityHigh},
	{regexp.MustCompile(`(?i)\byou\s+(have|are|suffer\s+from)\s+(depression|anxiety|bipolar|schizophrenia|ptsd|ocd)`), FlagDiagnosisClaim, SeverityMedium},
	{regexp.MustCompile(`(?i)\bthis\s+(is|means)\s+you\s+are\s+(depressed|anxious|mentally\s+ill)`), FlagDiagnosisClaim, SeverityMedium},
	{regexp.MustCompile(`(?i)\binstead\s+of\s+(therapy|counseling|seeing\s+a\s+therapist)`), FlagTherapySubstitute, SeverityMedium},
	{regexp.MustCompile(`(?i)\byou\s+don'?t\s+need\s+(therapy|a\s+therapist|professional\s+help)`), FlagTherapySubstitute, SeverityHigh},
}

var triggerPatterns = []patternRule{
	{regexp.MustCompile(`(?i)\b(graphic|detailed)\s+(description|account)\s+of\s+(trauma|abuse|violence)`), FlagTriggerContent, SeverityMedium},
	{regexp.MustCompile(`(?i)\b(childhood|sexual|physical)\s+(abuse|trauma)`), FlagTriggerContent, SeverityLow},
	{regexp.MustCompile(`(?i)\b(eating\s+disorder|anorexia|bulimia)\b`), FlagTriggerContent, SeverityLow},
}

var allPatterns = func() []patternRule {
	all := make([]patternRule, 0, len(crisisPatterns)+len(medicalPatterns)+len(triggerPatterns))
	all = append(all, crisisPatterns...)
	all = append(all, medicalPatterns...)
	all = append(all, triggerPatterns...)
	return all
}()

const mentalHealthDisclaimer = `IMPORTANT DISCLAIMER: This content is for informational and educational purposes only. It is not intended to be a substitute for professional medical advice, diagnosis, or treatment. If you are experiencing a mental health crisis, please contact a mental health professional or call a crisis helpline immediately. In the US, you can call 988 (Suicide & Crisis Lifeline) or text HOME to 741741 (Crisis Text Line).`

const medicalDisclaimer = `MEDICAL DISCLAIMER: The information in this content should not be considered medical advice. Always consult with a qualified healthcare provider before making any changes to medication or treatment plans.`

var mentalHealthKeywords = []string{
	"mental health", "anxiety", "depression", "therapy",
	"counseling", "stress", "trauma", "coping", "wellness",
	"self-care", "mindfulness", "emotional", "psychological",
}

var recommendations = map[Flag]string{
	FlagSuicideMention:     "Add crisis resources. Consider rewording to focus on hope and recovery.",
	FlagSelfHarm:           "Add content warning and crisis resources. Ensure context is supportive.",
	FlagCrisisLanguage:     "Review for tone. Add crisis hotline information.",
	FlagDrugRecommendation: "Reword to suggest consulting a healthcare provider. Add medical disclaimer.",
	FlagDiagnosisClaim:     "Reword to suggest seeing a professional for diagnosis.",
	FlagTherapySubstitute:  "Emphasize that content complements, not replaces, professional help.",
	FlagTriggerContent:     "Add content warning at the beginning of the section.",
	FlagMedicalAdvice:      "Add medical disclaimer. Suggest consulting a professional.",
}

// Screener is the SafetyScreener capability.
type Screener struct {
	strictMode         bool
	requireDisclaimer  bool
}

// New constructs a Screener. In strictMode, any finding fails the check;
// otherwise only critical/high findings block (spec section 4.8).
func New(strictMode bool) *Screener {
	return &Screener{strictMode: strictMode, requireDisclaimer: true}
}

// CheckContent screens content against all three pattern sets.
func (s *Screener) CheckContent(content string) Result {
	var findings []Finding
	for _, rule := range allPatterns {
		for _, loc := range rule.pattern.FindAllStringIndex(content, -1) {
			start, end := loc[0], loc[1]
			findings = append(findings, Finding{
				Flag:           rule.flag,
				Severity:       rule.severity,
				Location:       charRange(start, end),
				MatchedText:    content[start:end],
				Recommendation: recommendations[rule.flag],
			})
		}
	}

	isSafe := len(criticalOrHigh(findings)) == 0
	if s.strictMode && len(findings) > 0 {
		isSafe = false
	}

	requiresDisclaimer := false
	suggestedDisclaimer := ""
	if s.requireDisclaimer {
		if containsAny(strings.ToLower(content), mentalHealthKeywords) {
			requiresDisclaimer = true
			suggestedDisclaimer = mentalHealthDisclaimer
		}
		for _, f := range findings {
			if f.Flag == FlagDrugRecommendation {
				requiresDisclaimer = true
				suggestedDisclaimer = medicalDisclaimer
				break
			}
		}
	}

	return Result{
		IsSafe:              isSafe,
		Findings:            findings,
		RequiresDisclaimer:  requiresDisclaimer,
		SuggestedDisclaimer: suggestedDisclaimer,
	}
}

func criticalOrHigh(findings []Finding) []Finding {
	var out []Finding
	for _, f := range findings {
		if f.Severity == SeverityHigh || f.Severity == SeverityCritical {
			out = append(out, f)
		}
	}
	return out
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func charRange(start, end int) string {
	return "chars " + strconv.Itoa(start) + "-" + strconv.Itoa(end)
}

// AddDisclaimer prepends the given disclaimer type ("medical" or
// "mental_health") to content.
func AddDisclaimer(content, disclaimerType string) string {
	disclaimer := mentalHealthDisclaimer
	if disclaimerType == "medical" {
		disclaimer = medicalDisclaimer
	}
	return disclaimer + "\n\n---\n\n" + content
}

const crisisResources = `---

If you or someone you know is struggling with mental health or having thoughts of suicide, please reach out for help:

- National Suicide Prevention Lifeline: 988 (US)
- Crisis Text Line: Text HOME to 741741 (US)
- International Association for Suicide Prevention: https://www.iasp.info/resources/Crisis_Centres/
- SAMHSA National Helpline: 1-800-662-4357 (US)

You are not alone, and help is available.`

// CrisisResources returns formatted crisis resources to append to content.
func CrisisResources() string {
	return crisisResources
}
