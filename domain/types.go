// Package domain holds the entity types shared across the workflow core:
// source material, voice profile, outline, chapter, citations, and the
// workflow/call-log records that the orchestrator and cost ledger persist.
package domain

import "time"

// SourceChunk is an extracted-text fragment with a pre-computed embedding.
// Immutable after ingestion; owned by the (out of scope) ingestion pipeline
// and consumed read-only by the core.
type SourceChunk struct {
	ID               string    `json:"id"`
	ProjectID        string    `json:"project_id"`
	SourceMaterialID string    `json:"source_material_id"`
	Filename         string    `json:"filename"`
	Content          string    `json:"content"`
	ChunkIndex       int       `json:"chunk_index"`
	WordCount        int       `json:"word_count"`
	Embedding        []float32 `json:"embedding"`
}

// Stylometry captures deterministic prose-style features for a body of text.
type Stylometry struct {
	AvgSentenceLength    float64 `json:"avg_sentence_length"`
	SentenceLengthStd    float64 `json:"sentence_length_std"`
	AvgWordLength        float64 `json:"avg_word_length"`
	VocabularyComplexity float64 `json:"vocabulary_complexity"`
	VocabularyRichness   float64 `json:"vocabulary_richness"`
	PunctuationDensity   float64 `json:"punctuation_density"`
	QuestionRatio        float64 `json:"question_ratio"`
	ExclamationRatio     float64 `json:"exclamation_ratio"`
	CommaDensity         float64 `json:"comma_density"`
	SemicolonDensity     float64 `json:"semicolon_density"`
	AvgParagraphLength   float64 `json:"avg_paragraph_length"`
}

// VoiceProfile is the one-per-project stylistic fingerprint built by the
// VoiceAnalyst agent from uploaded writing samples.
type VoiceProfile struct {
	ProjectID          string     `json:"project_id"`
	Embedding          []float32  `json:"embedding"`
	Stylometry         Stylometry `json:"stylometry"`
	CommonPhrases      []string   `json:"common_phrases"`
	SentenceStarters   []string   `json:"sentence_starters"`
	TransitionWords    []string   `json:"transition_words"`
	SimilarityThreshold float64   `json:"similarity_threshold"`
	EmbeddingWeight    float64    `json:"embedding_weight"`
}

// OutlineChapter is one planned chapter entry inside an Outline.
type OutlineChapter struct {
	Number         int      `json:"number"`
	Title          string   `json:"title"`
	Summary        string   `json:"summary"`
	KeyPoints      []string `json:"key_points"`
	EstimatedWords int      `json:"estimated_words"`
}

// Outline is the book-level plan produced by OutlineSubgraph. It is mutated
// only through additional subgraph iterations and is frozen on approval.
type Outline struct {
	Title          string           `json:"title"`
	Premise        string           `json:"premise"`
	Chapters       []OutlineChapter `json:"chapters"`
	Themes         []string         `json:"themes"`
	TargetAudience string           `json:"target_audience"`
}

// Citation binds a verbatim source excerpt to a position in chapter prose.
type Citation struct {
	Filename         string `json:"filename"`
	Quote            string `json:"quote"`
	MarkerStart      int    `json:"marker_start"`
	MarkerEnd        int    `json:"marker_end"`
	QuoteStart       int    `json:"quote_start"`
	QuoteEnd         int    `json:"quote_end"`
	Verified         bool   `json:"verified"`
	SourceMaterialID string `json:"source_material_id,omitempty"`
}

// ClaimMapping is a single (claim, source, quote, supported?) record emitted
// by the FactChecker agent.
type ClaimMapping struct {
	Claim           string  `json:"claim"`
	SourceFilename  string  `json:"source_filename"`
	Quote           string  `json:"quote"`
	QuoteVerified   bool    `json:"quote_verified"`
	IsSupported     bool    `json:"is_supported"`
	NeedsHumanReview bool   `json:"needs_human_review"`
	Confidence      float64 `json:"confidence"`
}

// CitationReport is the deterministic output of GroundingVerifier's
// verify_inline_citations operation.
type CitationReport struct {
	InlineTotal        int                   `json:"inline_total"`
	InlineParsed       int                   `json:"inline_parsed"`
	InlineInvalidFormat int                  `json:"inline_invalid_format"`
	InlineVerified     int                   `json:"inline_verified"`
	InlineUnverified   int                   `json:"inline_unverified"`
	InlineQuality      float64               `json:"inline_quality"`
	Citations          []Citation            `json:"citations"`
}

// QualityGateReport records the three gate components and their verdicts.
type QualityGateReport struct {
	VoiceOK      bool     `json:"voice_ok"`
	CitationsOK  bool     `json:"citations_ok"`
	StyleOK      bool     `json:"style_ok"`
	StyleIssues  []string `json:"style_issues"`
	Passed       bool     `json:"passed"`
}

// RevisionEntry is one diagnostic snapshot appended to a chapter's
// revision_history during the revise loop (and on finalize).
type RevisionEntry struct {
	Iteration    int               `json:"iteration"`
	Stage        string            `json:"stage"`
	VoiceScore   float64           `json:"voice_score"`
	FactScore    float64           `json:"fact_score"`
	CohesionScore float64          `json:"cohesion_score"`
	StyleIssues  []string          `json:"style_issues"`
	Citations    CitationReport    `json:"citation_report"`
	Feedback     []string          `json:"feedback"`
	CreatedAt    time.Time         `json:"created_at"`
}

// CanonBlock is the per-chapter grounded memory fed forward to the next
// chapter's drafter for coherence. Append-only; never rewritten.
type CanonBlock struct {
	ChapterNumber        int      `json:"chapter_number"`
	Title                string   `json:"title"`
	OutlineSummary       string   `json:"outline_summary"`
	KeyPoints            []string `json:"key_points"`
	GroundedCommitments  []string `json:"grounded_commitments"`
	NeedsReview          []string `json:"needs_review"`
	Unsupported          []string `json:"unsupported"`
	CitationsOK          bool     `json:"citations_ok"`
	StyleIssues          []string `json:"style_issues"`
}

// Chapter is the unit of generated content produced by ChapterSubgraph.
type Chapter struct {
	Number              int               `json:"number"`
	Title               string            `json:"title"`
	ContentRaw          string            `json:"content_raw"`
	ContentClean        string            `json:"content_clean"`
	WordCount           int               `json:"word_count"`
	VoiceScore          float64           `json:"voice_score"`
	FactScore           float64           `json:"fact_score"`
	CohesionScore       float64           `json:"cohesion_score"`
	Citations           []Citation        `json:"citations"`
	CitationReport      CitationReport    `json:"citation_report"`
	QualityGatesPassed  bool              `json:"quality_gates_passed"`
	QualityGateReport   QualityGateReport `json:"quality_gate_report"`
	RevisionHistory     []RevisionEntry   `json:"revision_history"`
}

// Phase enumerates WorkflowState's position in the outer state machine.
type Phase string

const (
	PhasePending          Phase = "pending"
	PhaseIngest           Phase = "ingest"
	PhaseEmbed            Phase = "embed"
	PhaseOutlining        Phase = "outlining"
	PhaseOutlineReview    Phase = "outline_review"
	PhaseDrafting         Phase = "drafting"
	PhaseSafetyCheck      Phase = "safety_check"
	PhaseFinalize         Phase = "finalize"
	PhaseCompleted        Phase = "completed"
	PhaseFailed           Phase = "failed"
)

// WorkflowState is the tagged record persisted at every transition of the
// top-level orchestrator. WorkflowOrchestrator is its sole owner; subgraphs
// return values into it but never mutate it directly.
type WorkflowState struct {
	WorkflowID   string `json:"workflow_id"`
	ProjectID    string `json:"project_id"`
	UserID       string `json:"user_id"`

	Phase    Phase `json:"phase"`
	Progress int   `json:"progress"`

	SourceSummaries []string      `json:"source_summaries"`
	VoiceProfile    *VoiceProfile `json:"voice_profile,omitempty"`

	TargetChapters        int `json:"target_chapters"`
	TargetPages           int `json:"target_pages"`
	TargetWordsPerChapter int `json:"target_words_per_chapter"`

	Title       string   `json:"title"`
	Description string   `json:"description"`

	Outline         *Outline `json:"outline,omitempty"`
	OutlineApproved bool     `json:"outline_approved"`

	Chapters         []Chapter    `json:"chapters"`
	ChapterSummaries []string     `json:"chapter_summaries"`
	ChapterCanon     []CanonBlock `json:"chapter_canon"`

	TotalTokens int     `json:"total_tokens"`
	TotalCost   float64 `json:"total_cost"`

	PendingUserAction string   `json:"pending_user_action,omitempty"`
	UserFeedback      []string `json:"user_feedback,omitempty"`

	SafetyPassed        bool     `json:"safety_passed"`
	SafetyFindings       []string `json:"safety_findings"`
	SuggestedDisclaimer string   `json:"suggested_disclaimer,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Error string `json:"error,omitempty"`
}

// CallLog is the append-only per-call record written by CostLedger.
type CallLog struct {
	ID              string         `json:"id"`
	AgentName       string         `json:"agent_name"`
	Model           string         `json:"model"`
	Provider        string         `json:"provider"`
	CallType        string         `json:"call_type"`
	InputTokens     int            `json:"input_tokens"`
	OutputTokens    int            `json:"output_tokens"`
	InputCost       float64        `json:"input_cost"`
	OutputCost      float64        `json:"output_cost"`
	TotalCost       float64        `json:"total_cost"`
	DurationMS      int64          `json:"duration_ms"`
	Success         bool           `json:"success"`
	ProjectID       string         `json:"project_id,omitempty"`
	TaskID          string         `json:"task_id,omitempty"`
	WorkflowRunID   string         `json:"workflow_run_id,omitempty"`
	ChapterNumber   int            `json:"chapter_number,omitempty"`
	AgentRole       string         `json:"agent_role,omitempty"`
	IsFallback      bool           `json:"is_fallback"`
	FallbackReason  string         `json:"fallback_reason,omitempty"`
	PromptPreview   string         `json:"prompt_preview,omitempty"`
	ResponsePreview string         `json:"response_preview,omitempty"`
	Error           string         `json:"error,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

// TaskStatus mirrors the generation_tasks row status column.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskQueued    TaskStatus = "queued"
	TaskRunning   TaskStatus = "running"
	TaskPaused    TaskStatus = "paused"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// Task is the persisted record TaskRunner maps WorkflowOrchestrator results
// onto.
type Task struct {
	ID              string     `json:"id"`
	WorkflowID      string     `json:"workflow_id"`
	ProjectID       string     `json:"project_id"`
	Status          TaskStatus `json:"status"`
	Progress        int        `json:"progress"`
	CurrentStep     string     `json:"current_step"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	ConversationLog string     `json:"conversation_log,omitempty"`
	WorkflowRunID   string     `json:"workflow_run_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}
