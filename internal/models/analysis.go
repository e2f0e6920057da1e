// internal/models/analysis.go
package models

import "time"

// Category is the broad class of a question.
type Category string

const (
	CategoryGeneral   Category = "GENERAL"
	CategoryDatabase  Category = "DATABASE"
	CategorySearch    Category = "SEARCH"
	CategoryKnowledge Category = "KNOWLEDGE"
	CategoryWorkflow  Category = "WORKFLOW"
)

// Agent is the backend capability that answers a question.
type Agent string

const (
	AgentGeneral       Agent = "general"
	AgentQueryBuilder  Agent = "querybuilder"
	AgentElasticsearch Agent = "elasticsearch"
	AgentRAG           Agent = "rag"
	AgentWorkflow      Agent = "workflow"
)

// Priority controls whether the reorientation pass runs.
type Priority string

const (
	PriorityUrgent Priority = "URGENT"
	PriorityHaute  Priority = "HAUTE"
	PriorityNormal Priority = "NORMAL"
	PriorityBasse  Priority = "BASSE"
)

// AgentForCategory maps a category to the agent that handles it.
func AgentForCategory(c Category) Agent {
	switch c {
	case CategoryDatabase:
		return AgentQueryBuilder
	case CategorySearch:
		return AgentElasticsearch
	case CategoryKnowledge:
		return AgentRAG
	case CategoryWorkflow:
		return AgentWorkflow
	default:
		return AgentGeneral
	}
}

// CategoryForAgent is the reverse of AgentForCategory.
func CategoryForAgent(a Agent) Category {
	switch a {
	case AgentQueryBuilder:
		return CategoryDatabase
	case AgentElasticsearch:
		return CategorySearch
	case AgentRAG:
		return CategoryKnowledge
	case AgentWorkflow:
		return CategoryWorkflow
	default:
		return CategoryGeneral
	}
}

// AnalysisResult is the canonical routing decision produced per question.
// It is immutable after dispatch except for AppendContext, which the
// reorientation pass uses to extend (never replace) the decision trail.
type AnalysisResult struct {
	CorrectedQuestion string            `json:"correctedQuestion"`
	Intention         string            `json:"intention"`
	Category          Category          `json:"category"`
	TargetAgent       Agent             `json:"targetAgent"`
	Priority          Priority          `json:"priority"`
	Entities          []string          `json:"entities"`
	Context           string            `json:"context,omitempty"`
	ExplicitSearch    bool              `json:"explicitSearch,omitempty"`
	Metadata          *AnalysisMetadata `json:"metadata,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
}

// AnalysisMetadata carries the structured-query derivation details. Only
// DATABASE-routed results populate the table sections.
type AnalysisMetadata struct {
	ConcernedTables  []string         `json:"concernedTables,omitempty"`
	TemporalRange    *ResolvedPeriod  `json:"temporalRange,omitempty"`
	IdentifiedTables *TableBreakdown  `json:"identifiedTables,omitempty"`
	RequiredFields   *FieldBreakdown  `json:"requiredFields,omitempty"`
	Filters          *FilterBreakdown `json:"filters,omitempty"`
	QueryParameters  *QueryParameters `json:"queryParameters,omitempty"`
}

type TableBreakdown struct {
	Main   string   `json:"main"`
	Joined []string `json:"joined,omitempty"`
}

type FieldBreakdown struct {
	Selection []string `json:"selection,omitempty"`
	Filter    []string `json:"filter,omitempty"`
	Group     []string `json:"group,omitempty"`
}

type FilterBreakdown struct {
	Temporal []string `json:"temporal,omitempty"`
	Logical  []string `json:"logical,omitempty"`
}

type QueryParameters struct {
	Sort []string `json:"sort,omitempty"`
}

// AppendContext extends the decision trail. The existing context is never
// overwritten.
func (a *AnalysisResult) AppendContext(note string) {
	if a.Context == "" {
		a.Context = note
		return
	}
	a.Context += note
}

// ReorientationVerdict is the critique the model gateway returns when asked
// to second-guess a routing decision.
type ReorientationVerdict struct {
	NewCategory Category `json:"newCategory"`
	NewAgent    Agent    `json:"newAgent"`
	Explanation string   `json:"explanation"`
	Confidence  float64  `json:"confidence"`
}
