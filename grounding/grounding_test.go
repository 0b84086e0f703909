package grounding

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ghostline-hq/ghostline/domain"
)

func TestVerifyInlineCitationsCountsAndVerifies(t *testing.T) {
	content := `The valley council met at dawn [citation: notes.txt - "the council met at dawn to decide"].`
	lookup := ConcatChunks(map[string][]string{
		"notes.txt": {"In the old records, the council met at dawn to decide the fate of the bridge."},
	})

	report := VerifyInlineCitations(content, lookup)
	assert.Equal(t, 1, report.InlineTotal)
	assert.Equal(t, 1, report.InlineParsed)
	assert.Equal(t, 0, report.InlineInvalidFormat)
	assert.Equal(t, 1, report.InlineVerified)
	assert.Equal(t, 0, report.InlineUnverified)
	assert.InDelta(t, 1.0, report.InlineQuality, 1e-9)
}

func TestVerifyInlineCitationsFlagsUnverifiedQuote(t *testing.T) {
	content := `[citation: notes.txt - "a quote that never appears anywhere"]`
	lookup := ConcatChunks(map[string][]string{"notes.txt": {"completely unrelated source text"}})

	report := VerifyInlineCitations(content, lookup)
	assert.Equal(t, 1, report.InlineParsed)
	assert.Equal(t, 0, report.InlineVerified)
	assert.Equal(t, 1, report.InlineUnverified)
	assert.Equal(t, 0.0, report.InlineQuality)
}

func TestVerifyInlineCitationsCountsInvalidFormatSeparately(t *testing.T) {
	content := `[citation: notes.txt missing dash and quote] and [citation: ok.txt - "a real quote here"]`
	lookup := ConcatChunks(map[string][]string{"ok.txt": {"this contains a real quote here somewhere"}})

	report := VerifyInlineCitations(content, lookup)
	assert.Equal(t, 2, report.InlineTotal)
	assert.Equal(t, 1, report.InlineParsed)
	assert.Equal(t, 1, report.InlineInvalidFormat)
}

func TestComputeStyleIssuesFlagsNoCitations(t *testing.T) {
	issues := ComputeStyleIssues("Plain prose with no markers at all.")
	assert.Contains(t, issues, "No citations found in chapter content")
}

func TestComputeStyleIssuesFlagsTooManyHeadings(t *testing.T) {
	content := "## One\n\n## Two\n\n## Three\n\n## Four\n\n[citation: a.txt - \"x\"]"
	issues := ComputeStyleIssues(content)
	assert.Contains(t, issues, "more than 3 level-2 headings")
}

func TestComputeStyleIssuesFlagsFrameworkNamePattern(t *testing.T) {
	content := `Use the ABC Framework to organize your thoughts. [citation: a.txt - "x"]`
	issues := ComputeStyleIssues(content)
	assert.Contains(t, issues, "named framework pattern detected")
}

func TestComputeStyleIssuesFlagsFirstPerson(t *testing.T) {
	content := `I believe this chapter captures the mood well. [citation: a.txt - "x"]`
	issues := ComputeStyleIssues(content)
	assert.Contains(t, issues, "first-person narration in model-authored prose")
}

func TestComputeStyleIssuesCleanContentHasNoIssues(t *testing.T) {
	content := `The council gathered at dawn [citation: notes.txt - "the council gathered at dawn"] to discuss the bridge.`
	issues := ComputeStyleIssues(content)
	assert.Empty(t, issues)
}

func TestSanitizeGroundingStripsHTMLNonDestructively(t *testing.T) {
	out := SanitizeGrounding(`<script>alert(1)</script>Plain text remains.`, false)
	assert.NotContains(t, out, "<script>")
	assert.Contains(t, out, "Plain text remains.")
}

func TestQualityGatePassesOnlyWhenAllThreeOK(t *testing.T) {
	report := domain.CitationReport{InlineTotal: 1, InlineParsed: 1, InlineVerified: 1, InlineQuality: 1.0}
	gate := QualityGate(0.9, 0.85, report, nil)
	assert.True(t, gate.Passed)

	badGate := QualityGate(0.5, 0.85, report, nil)
	assert.False(t, badGate.Passed)
	assert.False(t, badGate.VoiceOK)
}

func TestQualityGateFailsWithStyleIssues(t *testing.T) {
	report := domain.CitationReport{InlineTotal: 1, InlineParsed: 1, InlineVerified: 1, InlineQuality: 1.0}
	gate := QualityGate(0.9, 0.85, report, []string{"No citations found in chapter content"})
	assert.False(t, gate.Passed)
	assert.False(t, gate.StyleOK)
}

func TestHeadingCountMatchesLevel(t *testing.T) {
	content := "# Title\n\n## Section One\n\n## Section Two\n\n### Sub\n"
	assert.Equal(t, 2, HeadingCount(content, 2))
	assert.Equal(t, 1, HeadingCount(content, 1))
}
