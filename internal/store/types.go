package store

import "time"

// Project is the top-level ownership boundary: a repository Fold indexes.
type Project struct {
	ID           string
	Slug         string
	Name         string
	RootPath     string
	RemoteURL    string
	IncludeGlobs []string
	ExcludeGlobs []string
	AutoCommit   bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MemoryKind is the closed set of memory kinds.
type MemoryKind string

const (
	KindCodebase MemoryKind = "codebase"
	KindSession  MemoryKind = "session"
	KindSpec     MemoryKind = "spec"
	KindDecision MemoryKind = "decision"
	KindTask     MemoryKind = "task"
	KindGeneral  MemoryKind = "general"
	KindCommit   MemoryKind = "commit"
	KindPR       MemoryKind = "pr"
)

// MemorySource is the closed set of provenance tags.
type MemorySource string

const (
	SourceAgent MemorySource = "agent"
	SourceFile  MemorySource = "file"
	SourceGit   MemorySource = "git"
)

// Memory is a summarised knowledge unit.
type Memory struct {
	ID              string
	ProjectID       string
	Kind            MemoryKind
	Source          MemorySource
	Title           string
	Author          string
	Keywords        []string
	Tags            []string
	Context         string
	FilePath        string
	Language        string
	StartLine       int
	EndLine         int
	Body            string // null/empty in the row when Source == agent; canonical copy lives in the fold tree
	ContentHash     string
	OriginalDate    *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
	RetrievalCount  int
	LastAccessed    *time.Time
}

// ChunkNodeType labels the syntactic granularity of a chunk.
type ChunkNodeType string

const (
	NodeFunction  ChunkNodeType = "function"
	NodeClass     ChunkNodeType = "class"
	NodeStruct    ChunkNodeType = "struct"
	NodeInterface ChunkNodeType = "interface"
	NodeHeading   ChunkNodeType = "heading"
	NodeParagraph ChunkNodeType = "paragraph"
	NodeFile      ChunkNodeType = "file"
	NodeUnknown   ChunkNodeType = "unknown"
)

// Chunk is a bounded substring of a source file belonging to a Memory.
type Chunk struct {
	ID             string
	MemoryID       string
	ProjectID      string
	NodeType       ChunkNodeType
	NodeName       string
	Content        string
	StartLine      int
	EndLine        int
	StartByte      int
	EndByte        int
	Language       string
	ContentHash    string
	CreatedAt      time.Time
}

// LinkType is the closed set of relationship types between memories.
type LinkType string

const (
	LinkModifies   LinkType = "modifies"
	LinkContains   LinkType = "contains"
	LinkAffects    LinkType = "affects"
	LinkImplements LinkType = "implements"
	LinkDecides    LinkType = "decides"
	LinkSupersedes LinkType = "supersedes"
	LinkReferences LinkType = "references"
	LinkRelated    LinkType = "related"
	LinkParent     LinkType = "parent"
	LinkBlocks     LinkType = "blocks"
	LinkCausedBy   LinkType = "caused_by"
)

// LinkProvenance records who asserted a Link.
type LinkProvenance string

const (
	ProvenanceSystem LinkProvenance = "system"
	ProvenanceUser   LinkProvenance = "user"
	ProvenanceAI     LinkProvenance = "ai"
)

// Link is a directed, typed edge between two memories in the same project.
type Link struct {
	ID         string
	ProjectID  string
	SourceID   string
	TargetID   string
	Type       LinkType
	Provenance LinkProvenance
	Confidence float64
	CreatedAt  time.Time
}

// JobType is the closed set of background job kinds.
type JobType string

const (
	JobIndexRepo     JobType = "index_repo"
	JobReindexRepo   JobType = "reindex_repo"
	JobIndexHistory  JobType = "index_history"
	JobSyncMetadata  JobType = "sync_metadata"
)

// JobStatus is the job state machine's four durable states.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Job is a unit of background work managed by the job queue (C11).
type Job struct {
	ID            string
	Type          JobType
	Status        JobStatus
	Priority      int
	ProjectID     string
	Total         int
	Processed     int
	Failed        int
	LeaseOwner    string
	LeaseExpires  *time.Time
	RetryCount    int
	ScheduledAt   time.Time
	CreatedAt     time.Time
	StartedAt     *time.Time
	FinishedAt    *time.Time
	Result        string // JSON
	Error         string
}

// JobLog is one append-only log line for a job, streamed via the event bus.
type JobLog struct {
	ID        int64
	JobID     string
	Level     string
	Message   string
	Metadata  string // JSON
	CreatedAt time.Time
}

// ProviderKind distinguishes LLM providers from embedding providers.
type ProviderKind string

const (
	ProviderLLM       ProviderKind = "llm"
	ProviderEmbedding ProviderKind = "embedding"
)

// Provider is a configured LLM or embedding endpoint.
type Provider struct {
	ID              string
	Kind            ProviderKind
	Name            string
	Endpoint        string
	Model           string
	Priority        int
	APIKey          string // never returned by read operations, see Redacted()
	OAuthToken      string // wins over APIKey when both set, never returned either
	Enabled         bool
	LastUsed        *time.Time
	ConsecutiveErrs int
	LastError       string
	LastErrorAt     *time.Time
	UsageCount      int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Redacted returns a copy of p with credential fields cleared, for read
// operations that must never return secrets to callers (spec.md §3 Provider
// invariant).
func (p Provider) Redacted() Provider {
	p.APIKey = ""
	p.OAuthToken = ""
	return p
}

// HasCredential reports whether the provider has any usable credential.
func (p Provider) HasCredential() bool {
	return p.APIKey != "" || p.OAuthToken != ""
}

// Credential returns the active credential value and whether it is an OAuth
// token (OAuth wins if both are set, per spec.md §3).
func (p Provider) Credential() (value string, isOAuth bool) {
	if p.OAuthToken != "" {
		return p.OAuthToken, true
	}
	return p.APIKey, false
}
