// internal/models/query.go
package models

// TableRole distinguishes the single main table from joined ones.
type TableRole string

const (
	RolePrincipale TableRole = "PRINCIPALE"
	RoleJointe     TableRole = "JOINTE"
)

// ConditionKind classifies a filter condition.
type ConditionKind string

const (
	ConditionTemporel ConditionKind = "TEMPOREL"
	ConditionFiltre   ConditionKind = "FILTRE"
	ConditionLogique  ConditionKind = "LOGIQUE"
)

// StructuredQuery is the backend-agnostic representation handed to a
// data-access agent. Exactly one table carries RolePrincipale.
type StructuredQuery struct {
	Tables     []QueryTable     `json:"tables"`
	Conditions []QueryCondition `json:"conditions,omitempty"`
	GroupBy    []string         `json:"groupBy"`
	OrderBy    []string         `json:"orderBy"`
	Period     *ResolvedPeriod  `json:"period,omitempty"`
	Metadata   QueryMetadata    `json:"metadata"`
}

type QueryTable struct {
	Name          string    `json:"name"`
	Alias         string    `json:"alias"`
	Role          TableRole `json:"role"`
	Columns       []string  `json:"columns"`
	JoinCondition string    `json:"joinCondition,omitempty"`
}

// QueryCondition holds an expression with :name placeholders. Every
// placeholder must have an entry in Parameters before dispatch.
type QueryCondition struct {
	Kind       ConditionKind  `json:"kind"`
	Expression string         `json:"expression"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

type QueryMetadata struct {
	Intention   string `json:"intention"`
	Description string `json:"description"`
}

// MainTable returns the PRINCIPALE table, or false when the invariant does
// not hold.
func (q *StructuredQuery) MainTable() (QueryTable, bool) {
	for _, t := range q.Tables {
		if t.Role == RolePrincipale {
			return t, true
		}
	}
	return QueryTable{}, false
}

// PeriodKind tells whether a temporal period is computed relative to "now".
type PeriodKind string

const (
	PeriodDynamique PeriodKind = "DYNAMIQUE"
	PeriodFixe      PeriodKind = "FIXE"
)

// PeriodPrecision is the calendar granularity of a period.
type PeriodPrecision string

const (
	PrecisionJour    PeriodPrecision = "JOUR"
	PrecisionSemaine PeriodPrecision = "SEMAINE"
	PrecisionMois    PeriodPrecision = "MOIS"
	PrecisionAnnee   PeriodPrecision = "ANNEE"
)

// TemporalPeriod describes a relative or absolute time span before
// resolution. DYNAMIQUE periods resolve against the current date, so
// resolving the same period on different days yields different bounds.
type TemporalPeriod struct {
	Kind      PeriodKind      `json:"kind"`
	Precision PeriodPrecision `json:"precision"`
	Reference string          `json:"reference,omitempty"`
	Start     string          `json:"start,omitempty"` // ISO YYYY-MM-DD
	End       string          `json:"end,omitempty"`
}

// ResolvedPeriod is the concrete date span a TemporalPeriod resolves to.
type ResolvedPeriod struct {
	Start string `json:"start"`
	End   string `json:"end"`
}
