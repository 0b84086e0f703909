// Package grounding implements the GroundingVerifier capability (C7):
// inline citation-marker parsing/verification, deterministic style-issue
// detection, and the final voice/citations/style quality gate.
//
// Grounded on spec section 4.7 (exact and normative) and on the teacher's
// bluemonday/gomarkdown dependencies for HTML stripping and heading
// structure respectively; citation-quote matching is new regexp +
// string-normalization code since no ecosystem library matches quotes
// against source text, documented in DESIGN.md.
package grounding

import (
	"html"
	"regexp"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/ast"
	"github.com/microcosm-cc/bluemonday"

	"github.com/ghostline-hq/ghostline/domain"
)

// citationMarkerPattern matches [citation: <filename> - "<quote>"] with
// straight or curly quotes, per spec section 4.7.
var citationMarkerPattern = regexp.MustCompile(`\[citation:\s*([^\]-]+?)\s*-\s*["“]([^"”]+)["”]\s*\]`)

// citationTokenPattern matches any "[citation:" occurrence, strictly
// parseable or not, for inline_total.
var citationTokenPattern = regexp.MustCompile(`\[citation:`)

var nonAlnumPattern = regexp.MustCompile(`[^a-z0-9]+`)

func normalizeFilename(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, "[]")
	return s
}

func normalizeQuote(s string) string {
	s = strings.ToLower(s)
	s = nonAlnumPattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// SourceLookup resolves a filename to the text to verify quotes against:
// full extracted text if available, else concatenated chunk content.
type SourceLookup func(filename string) string

// VerifyInlineCitations implements spec section 4.7's
// verify_inline_citations.
func VerifyInlineCitations(content string, lookup SourceLookup) domain.CitationReport {
	allMarkers := citationTokenPattern.FindAllStringIndex(content, -1)
	parsedMatches := citationMarkerPattern.FindAllStringSubmatchIndex(content, -1)

	report := domain.CitationReport{
		InlineTotal:  len(allMarkers),
		InlineParsed: len(parsedMatches),
	}
	report.InlineInvalidFormat = report.InlineTotal - report.InlineParsed

	for _, m := range parsedMatches {
		markerStart, markerEnd := m[0], m[1]
		filenameRaw := content[m[2]:m[3]]
		quoteRaw := content[m[4]:m[5]]

		filename := normalizeFilename(filenameRaw)
		normQuote := normalizeQuote(quoteRaw)

		sourceText := ""
		if lookup != nil {
			sourceText = lookup(filename)
		}
		normSource := normalizeQuote(sourceText)

		verified := normQuote != "" && strings.Contains(normSource, normQuote)

		c := domain.Citation{
			Filename:    strings.TrimSpace(filenameRaw),
			Quote:       strings.TrimSpace(quoteRaw),
			MarkerStart: markerStart,
			MarkerEnd:   markerEnd,
			Verified:    verified,
			QuoteStart:  m[4],
			QuoteEnd:    m[5],
		}
		report.Citations = append(report.Citations, c)

		if verified {
			report.InlineVerified++
		} else {
			report.InlineUnverified++
		}
	}

	if report.InlineParsed > 0 {
		report.InlineQuality = float64(report.InlineVerified) / float64(report.InlineParsed)
	}

	return report
}

var (
	frameworkNamePattern = regexp.MustCompile(`[A-Z]{3,}\s+Framework`)
	metaLanguagePattern  = regexp.MustCompile(`(?i)\b(framework|toolkit|arsenal)\b`)
	medicalStatKeywords  = regexp.MustCompile(`(?i)\b(percent|percentage|study|studies|research shows|clinically|diagnosis|prevalence|statistically)\b`)
	digitPattern         = regexp.MustCompile(`\d`)
	firstPersonPattern   = regexp.MustCompile(`\bI\b`)
	dashCountPattern     = regexp.MustCompile(`—|–|--`)
)

// ComputeStyleIssues implements spec section 4.7's compute_style_issues.
func ComputeStyleIssues(content string) []string {
	var issues []string

	if HeadingCount(content, 2) > 3 {
		issues = append(issues, "more than 3 level-2 headings")
	}

	words := wordCount(content)
	if words > 0 {
		dashCount := len(dashCountPattern.FindAllString(content, -1))
		dashRate := float64(dashCount) / float64(words) * 1000
		if dashRate > 2.0 {
			issues = append(issues, "excessive dash usage")
		}
	}

	if frameworkNamePattern.MatchString(content) {
		issues = append(issues, "named framework pattern detected")
	}

	if metaCount := len(metaLanguagePattern.FindAllString(content, -1)); metaCount >= 6 {
		issues = append(issues, "overuse of meta-language (framework/toolkit/arsenal)")
	}

	if !citationTokenPattern.MatchString(content) {
		issues = append(issues, "No citations found in chapter content")
	}

	if hasUncitedFactualSentence(content) {
		issues = append(issues, "factual-looking uncited sentence")
	}

	if hasUnverbatimQuotedParagraph(content) {
		issues = append(issues, "citation quote does not appear verbatim in its paragraph")
	}

	if hasFirstPersonOutsideQuotes(content) {
		issues = append(issues, "first-person narration in model-authored prose")
	}

	return issues
}

var sentenceSplit = regexp.MustCompile(`[.!?]+\s+`)

// hasUncitedFactualSentence flags any sentence outside a citation marker
// span that contains a digit or a medical/statistical keyword.
func hasUncitedFactualSentence(content string) bool {
	markerSpans := citationMarkerPattern.FindAllStringIndex(content, -1)
	for _, sentence := range splitSentencesWithSpans(content) {
		if spanOverlapsAny(sentence.start, sentence.end, markerSpans) {
			continue
		}
		if digitPattern.MatchString(sentence.text) || medicalStatKeywords.MatchString(sentence.text) {
			return true
		}
	}
	return false
}

type sentenceSpan struct {
	text       string
	start, end int
}

func splitSentencesWithSpans(content string) []sentenceSpan {
	var spans []sentenceSpan
	idxs := sentenceSplit.FindAllStringIndex(content, -1)
	prev := 0
	for _, idx := range idxs {
		text := content[prev:idx[0]]
		if strings.TrimSpace(text) != "" {
			spans = append(spans, sentenceSpan{text: text, start: prev, end: idx[0]})
		}
		prev = idx[1]
	}
	if prev < len(content) && strings.TrimSpace(content[prev:]) != "" {
		spans = append(spans, sentenceSpan{text: content[prev:], start: prev, end: len(content)})
	}
	return spans
}

func spanOverlapsAny(start, end int, spans [][]int) bool {
	for _, s := range spans {
		if start < s[1] && end > s[0] {
			return true
		}
	}
	return false
}

// hasUnverbatimQuotedParagraph flags paragraphs with >=20 words that
// contain a citation whose quoted text does not appear verbatim in the
// paragraph prose, once markers are stripped.
func hasUnverbatimQuotedParagraph(content string) bool {
	for _, para := range strings.Split(content, "\n\n") {
		if wordCount(para) < 20 {
			continue
		}
		matches := citationMarkerPattern.FindAllStringSubmatch(para, -1)
		if len(matches) == 0 {
			continue
		}
		stripped := citationMarkerPattern.ReplaceAllString(para, "")
		for _, m := range matches {
			quote := strings.TrimSpace(m[2])
			if quote == "" {
				continue
			}
			if !strings.Contains(stripped, quote) {
				return true
			}
		}
	}
	return false
}

// hasFirstPersonOutsideQuotes flags a bare "I" outside a citation marker's
// quoted span (a crude proxy for "outside quoted spans" generally, since
// quotation marks elsewhere in prose are ambiguous without a full parser).
func hasFirstPersonOutsideQuotes(content string) bool {
	markerSpans := citationMarkerPattern.FindAllStringIndex(content, -1)
	for _, m := range firstPersonPattern.FindAllStringIndex(content, -1) {
		if !spanOverlapsAny(m[0], m[1], markerSpans) {
			return true
		}
	}
	return false
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

// SanitizeGrounding is the non-destructive default: runs content through
// bluemonday's strict policy to strip any HTML a model echoed back, then
// normalizes whitespace, matching spec section 4.7's "identity function by
// default (non-destructive)".
func SanitizeGrounding(content string, destructive bool) string {
	// bluemonday HTML-escapes the text it keeps (" becomes &#34;), which
	// would break citation markers; unescape to restore the original text.
	stripped := html.UnescapeString(bluemonday.StrictPolicy().Sanitize(content))
	stripped = collapseBlankLines(stripped)
	if !destructive {
		return stripped
	}
	return destructiveSanitize(stripped)
}

var blankLinesPattern = regexp.MustCompile(`\n{3,}`)

func collapseBlankLines(s string) string {
	return blankLinesPattern.ReplaceAllString(strings.TrimSpace(s), "\n\n")
}

// destructiveSanitize is the legacy destructive path: it drops paragraphs
// of 20 or more words that carry no citation marker. It does not inject
// quotes or remove first-person sentences. It runs only when
// SanitizeGrounding is called with destructive=true, which no caller in
// this module does (see DESIGN.md Open Question decisions).
func destructiveSanitize(content string) string {
	var kept []string
	for _, para := range strings.Split(content, "\n\n") {
		if wordCount(para) >= 20 && !citationTokenPattern.MatchString(para) {
			continue
		}
		kept = append(kept, para)
	}
	return strings.Join(kept, "\n\n")
}

// HeadingCount walks a chapter markdown's AST to count headings of the
// given level (the style gate uses level 2),
// using gomarkdown instead of a regex, grounded on its presence as a
// teacher dependency.
func HeadingCount(content string, level int) int {
	doc := markdown.Parse([]byte(content), nil)
	count := 0
	ast.WalkFunc(doc, func(node ast.Node, entering bool) ast.WalkStatus {
		if !entering {
			return ast.GoToNext
		}
		if h, ok := node.(*ast.Heading); ok && h.Level == level {
			count++
		}
		return ast.GoToNext
	})
	return count
}

// QualityGate implements spec section 4.7's final quality gate formula.
func QualityGate(voiceScore, voiceThreshold float64, report domain.CitationReport, styleIssues []string) domain.QualityGateReport {
	voiceOK := voiceScore >= voiceThreshold
	citationsOK := report.InlineParsed > 0 &&
		report.InlineInvalidFormat == 0 &&
		report.InlineUnverified == 0 &&
		report.InlineQuality >= 0.99 &&
		report.InlineTotal > 0
	styleOK := len(styleIssues) == 0

	return domain.QualityGateReport{
		VoiceOK:     voiceOK,
		CitationsOK: citationsOK,
		StyleOK:     styleOK,
		StyleIssues: styleIssues,
		Passed:      voiceOK && citationsOK && styleOK,
	}
}

// ConcatChunks builds a SourceLookup's backing text for a filename out of
// the provided chunk contents, used when no full extracted text is
// available (spec section 4.7: "full extracted text if available, else
// concatenated provided chunks").
func ConcatChunks(chunksByFilename map[string][]string) SourceLookup {
	cache := map[string]string{}
	for filename, chunks := range chunksByFilename {
		cache[filename] = strings.Join(chunks, " ")
	}
	return func(filename string) string {
		return cache[filename]
	}
}
