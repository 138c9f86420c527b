// Package model defines the shared entity types persisted by the store
// and passed between components. Cross-entity references are always
// id-based; nothing here holds a pointer into another entity.
package model

import "time"

// Scope is the visibility partition of a Fact.
type Scope string

const (
	ScopeProject  Scope = "project"
	ScopePersonal Scope = "personal"
	ScopeTeam     Scope = "team"
	ScopeGlobal   Scope = "global"
)

// FactStatus is the lifecycle stage of a Fact.
type FactStatus string

const (
	FactCandidate FactStatus = "candidate"
	FactConfirmed FactStatus = "confirmed"
	FactArchived  FactStatus = "archived"
)

// SessionEndReason is the tagged variant preserved verbatim on session end.
type SessionEndReason string

const (
	EndToolLoopTerminated SessionEndReason = "tool_loop_terminated"
	EndExplicitCompletion SessionEndReason = "explicit_completion"
	EndGitCommitDetected  SessionEndReason = "git_commit_detected"
	EndInactivityTimeout  SessionEndReason = "inactivity_timeout"
	EndMaxIterations      SessionEndReason = "max_iterations"
	EndUserCancelled      SessionEndReason = "user_cancelled"
	EndFailed             SessionEndReason = "failed"
)

// Project is a workspace root.
type Project struct {
	ID          int64
	Path        string
	Name        string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Session is one conversation with the assistant.
type Session struct {
	ID             string // opaque external id
	ProjectID      *int64
	StartedAt      time.Time
	LastActivityAt time.Time
	EndReason      *SessionEndReason
}

// ToolInvocation is one recorded tool call, the raw signal pondering
// aggregates into friction patterns.
type ToolInvocation struct {
	ID             int64
	ProjectID      int64
	SessionID      *string
	ToolName       string
	Success        bool
	DurationMillis *int64
	CreatedAt      time.Time
}

// Fact is the atomic memory unit.
type Fact struct {
	ID             int64
	ProjectID      *int64
	Key            *string
	Content        string
	FactType       string
	Category       *string
	Confidence     float64
	Scope          Scope
	UserID         *string
	TeamID         *int64
	Branch         *string
	Status         FactStatus
	Suspicious     bool
	SessionCount   int
	FirstSessionID *string
	LastSessionID  *string
	LastRecalled   *time.Time
	RecallCount    int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// FactEmbedding is the optional 1:1 vector side table for a Fact.
type FactEmbedding struct {
	FactID       int64
	Vector       []float32
	EmbeddedText string
}

// SymbolType enumerates the kinds of code declarations Symbol can represent.
type SymbolType string

const (
	SymFunction  SymbolType = "function"
	SymMethod    SymbolType = "method"
	SymClass     SymbolType = "class"
	SymStruct    SymbolType = "struct"
	SymInterface SymbolType = "interface"
	SymEnum      SymbolType = "enum"
	SymTrait     SymbolType = "trait"
	SymType      SymbolType = "type"
	SymConst     SymbolType = "const"
	SymVariable  SymbolType = "variable"
	SymProperty  SymbolType = "property"
	SymField     SymbolType = "field"
	SymRecord    SymbolType = "record"
)

// Symbol is one code declaration.
type Symbol struct {
	ID            int64
	ProjectID     int64
	FilePath      string
	Name          string
	QualifiedName string
	Type          SymbolType
	Language      string
	StartLine     int
	EndLine       int
	Signature     *string
	Visibility    string
	Documentation *string
	ReturnType    *string
	Decorators    []string
	IsTest        bool
	IsAsync       bool
}

// Import is a per-file edge: file -> import path.
type Import struct {
	ID             int64
	ProjectID      int64
	FilePath       string
	ImportPath     string
	ImportedNames  []string
	IsExternal     bool
}

// CallType distinguishes a direct call from a method call.
type CallType string

const (
	CallDirect CallType = "direct"
	CallMethod CallType = "method"
)

// CallEdge is one aggregated call site: caller symbol -> callee name.
type CallEdge struct {
	ID         int64
	ProjectID  int64
	CallerID   int64
	CalleeName string
	Line       int
	CallType   CallType
	Count      int
}

// CodeChunk is a semantic unit of code with its own embedding.
type CodeChunk struct {
	ID        int64
	ProjectID int64
	FilePath  string
	StartLine int
	EndLine   int
	Text      string
	Vector    []float32
}

// GoalStatus is the lifecycle of a Goal.
type GoalStatus string

const (
	GoalOpen       GoalStatus = "open"
	GoalInProgress GoalStatus = "in_progress"
	GoalDone       GoalStatus = "done"
	GoalAbandoned  GoalStatus = "abandoned"
)

// Goal is a hierarchical work-tracking unit.
type Goal struct {
	ID              int64
	ProjectID       int64
	Title           string
	Status          GoalStatus
	Priority        int
	ProgressPercent int
	CreatedAt       time.Time
}

// Milestone belongs to at most one Goal.
type Milestone struct {
	ID                 int64
	GoalID             int64
	Title              string
	Weight             int
	Completed          bool
	CompletionSessionID *string
}

// MilestoneProgress computes 100*sum(weight of completed)/sum(weight),
// integer-rounded and clamped to [0,100]. Zero total weight yields 0.
func MilestoneProgress(milestones []Milestone) int {
	var total, done int
	for _, m := range milestones {
		total += m.Weight
		if m.Completed {
			done += m.Weight
		}
	}
	if total <= 0 {
		return 0
	}
	pct := (100*done + total/2) / total
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// TaskStatus is the lifecycle of a Task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskCancelled  TaskStatus = "cancelled"
)

// Task is a lightweight flat project-scoped unit.
type Task struct {
	ID        int64
	ProjectID int64
	Title     string
	Status    TaskStatus
	Priority  int
	CreatedAt time.Time
}

// BuildRun is one invocation of a build tool.
type BuildRun struct {
	ID             int64
	ProjectID      int64
	OperationID    string
	BuildType      string
	Command        string
	ExitCode       int
	DurationMillis int64
	StartedAt      time.Time
	FinishedAt     time.Time
	ErrorCount     int
	WarningCount   int
}

// ErrorSeverity is the severity of a BuildError.
type ErrorSeverity string

const (
	SeverityError   ErrorSeverity = "error"
	SeverityWarning ErrorSeverity = "warning"
	SeverityInfo    ErrorSeverity = "info"
)

// ErrorCategory classifies a BuildError for resolution-matching.
type ErrorCategory string

const (
	CategoryType         ErrorCategory = "type"
	CategoryBorrow       ErrorCategory = "borrow"
	CategoryLifetime     ErrorCategory = "lifetime"
	CategoryImport       ErrorCategory = "import"
	CategoryUndefined    ErrorCategory = "undefined"
	CategoryUnused       ErrorCategory = "unused"
	CategorySyntax       ErrorCategory = "syntax"
	CategoryAssertion    ErrorCategory = "assertion"
	CategoryTestFailure  ErrorCategory = "test_failure"
	CategoryOther        ErrorCategory = "other"
)

// BuildError is a normalized, deduplicated error record.
type BuildError struct {
	ID              int64
	ProjectID       int64
	BuildRunID      int64
	ErrorHash       string
	Severity        ErrorSeverity
	ErrorCode       string
	Message         string
	FilePath        string
	Line            int
	Column          int
	Suggestion      *string
	Category        ErrorCategory
	FirstSeen       time.Time
	LastSeen        time.Time
	OccurrenceCount int
	ResolvedAt      *time.Time
}

// ResolutionType distinguishes how a BuildError was resolved.
type ResolutionType string

const (
	ResolutionManual       ResolutionType = "manual"
	ResolutionAutoResolved ResolutionType = "auto_resolved"
)

// ErrorResolution records how an error hash was resolved.
type ErrorResolution struct {
	ID             int64
	ErrorHash      string
	Type           ResolutionType
	FilesChanged   []string
	CommitHash     *string
	DurationMillis *int64
	Notes          *string
	CreatedAt      time.Time
}

// BehaviorPattern is ponder output: a distilled behavioral pattern.
type BehaviorPattern struct {
	ID              int64
	ProjectID       int64
	PatternType     string
	PatternKey      string
	Payload         string // JSON
	Confidence      float64
	OccurrenceCount int
	FirstSeen       time.Time
	LastTriggered   time.Time
}

// InterventionType enumerates the kinds of proactive suggestions.
type InterventionType string

const (
	InterventionBugWarning         InterventionType = "bug_warning"
	InterventionContextPrediction  InterventionType = "context_prediction"
	InterventionResourceSuggestion InterventionType = "resource_suggestion"
	InterventionStaleDoc           InterventionType = "stale_doc"
	InterventionMissingDoc         InterventionType = "missing_doc"
)

// InterventionResponse is how a user reacted to a surfaced intervention.
type InterventionResponse string

const (
	ResponseAccepted  InterventionResponse = "accepted"
	ResponseActedUpon InterventionResponse = "acted_upon"
	ResponseIgnored   InterventionResponse = "ignored"
	ResponseDismissed InterventionResponse = "dismissed"
)

// Intervention is a queued suggestion tied to a pattern.
type Intervention struct {
	ID               int64
	ProjectID        int64
	Type             InterventionType
	Content          string
	Confidence       float64
	TriggerPatternID *int64
	Response         *InterventionResponse
	CreatedAt        time.Time
	RespondedAt      *time.Time
}

// ResponseMultiplier returns the confidence multiplier for a given response,
// per spec: accepted 1.1, acted_upon 1.05, ignored 0.95, dismissed 0.8.
func ResponseMultiplier(r InterventionResponse) float64 {
	switch r {
	case ResponseAccepted:
		return 1.1
	case ResponseActedUpon:
		return 1.05
	case ResponseIgnored:
		return 0.95
	case ResponseDismissed:
		return 0.8
	default:
		return 1.0
	}
}

// ClampConfidence clamps a confidence value to [0.1, 1.0].
func ClampConfidence(c float64) float64 {
	if c < 0.1 {
		return 0.1
	}
	if c > 1.0 {
		return 1.0
	}
	return c
}
