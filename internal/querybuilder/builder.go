// internal/querybuilder/builder.go
package querybuilder

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"assistant-router/internal/common/config"
	stderrors "assistant-router/internal/common/errors"
	"assistant-router/internal/common/logger"
	"assistant-router/internal/models"
	"assistant-router/internal/temporal"
)

// Builder validates a semantic-analysis payload and converts it into a
// normalized, backend-agnostic StructuredQuery.
type Builder struct {
	resolver   *temporal.Resolver
	joinFormat string
	filterType string
	logger     logger.Logger
}

func NewBuilder(resolver *temporal.Resolver, cfg config.RoutingConfig, log logger.Logger) *Builder {
	return &Builder{
		resolver:   resolver,
		joinFormat: cfg.JoinConventionFormat,
		filterType: cfg.DefaultFilterType,
		logger:     log.With(map[string]interface{}{"component": "querybuilder"}),
	}
}

// Validate checks the payload's structural shape against the schema and the
// semantic invariants the schema cannot express. A nil return means the
// payload is safe to Build.
func (b *Builder) Validate(analysis *models.SemanticAnalysis) error {
	raw, err := json.Marshal(analysis)
	if err != nil {
		return stderrors.NewAnalysisValidationFailedError(err.Error())
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(analysisSchema),
		gojsonschema.NewBytesLoader(raw),
	)
	if err != nil {
		return stderrors.NewAnalysisValidationFailedError(err.Error())
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			details = append(details, e.String())
		}
		return stderrors.NewAnalysisValidationFailedError(strings.Join(details, "; "))
	}

	if analysis.Analyse.Intention.Action == "" || analysis.Analyse.Intention.Objectif == "" {
		return stderrors.NewAnalysisValidationFailedError("intention.action and intention.objectif are required")
	}
	if analysis.Analyse.Temporalite.Periode.Type == "" {
		return stderrors.NewAnalysisValidationFailedError("temporalite.periode is required")
	}
	if analysis.Analyse.Entites.Principale.Nom == "" {
		return stderrors.NewAnalysisValidationFailedError("entites.principale is required")
	}
	if len(analysis.Structure.Tables) == 0 {
		return stderrors.NewAnalysisValidationFailedError("structure_requete.tables must not be empty")
	}
	principals := 0
	for i, table := range analysis.Structure.Tables {
		if table.Nom == "" || table.Alias == "" || table.Type == "" || len(table.Colonnes) == 0 {
			return stderrors.NewAnalysisValidationFailedError(
				fmt.Sprintf("table %d is missing name, alias, role or columns", i))
		}
		if models.TableRole(strings.ToUpper(table.Type)) == models.RolePrincipale {
			principals++
		}
	}
	if principals != 1 {
		return stderrors.NewAnalysisValidationFailedError(
			fmt.Sprintf("exactly one PRINCIPALE table expected, got %d", principals))
	}

	return nil
}

// Build converts a validated payload into a StructuredQuery. Table order is
// preserved; JOINTE tables without an explicit join condition get one from
// the configured foreign-key naming convention, a best-effort default the
// caller must not treat as authoritative.
func (b *Builder) Build(analysis *models.SemanticAnalysis) (*models.StructuredQuery, error) {
	tables := make([]models.QueryTable, 0, len(analysis.Structure.Tables))
	for _, spec := range analysis.Structure.Tables {
		table := models.QueryTable{
			Name:          spec.Nom,
			Alias:         spec.Alias,
			Role:          models.TableRole(strings.ToUpper(spec.Type)),
			Columns:       spec.Colonnes,
			JoinCondition: spec.ConditionJointure,
		}
		if table.Alias == "" {
			table.Alias = strings.ToLower(table.Name)
		}
		if len(table.Columns) == 0 {
			table.Columns = []string{"*"}
		}
		if table.Role == models.RoleJointe && table.JoinCondition == "" {
			table.JoinCondition = fmt.Sprintf(b.joinFormat, table.Alias, strings.ToLower(table.Name))
		}
		tables = append(tables, table)
	}

	query := &models.StructuredQuery{
		Tables:  tables,
		GroupBy: emptyIfNil(analysis.Structure.Groupements),
		OrderBy: emptyIfNil(analysis.Structure.Ordre),
		Metadata: models.QueryMetadata{
			Intention:   analysis.Analyse.Intention.Action,
			Description: analysis.Analyse.Intention.Objectif,
		},
	}
	if query.Metadata.Intention == "" {
		query.Metadata.Intention = "RECHERCHE"
	}
	if query.Metadata.Description == "" {
		query.Metadata.Description = "Recherche générale"
	}

	principals := 0
	for _, table := range tables {
		if table.Role == models.RolePrincipale {
			principals++
		}
	}
	if principals == 0 {
		return nil, stderrors.NewMissingMainTableError()
	}
	if principals > 1 {
		return nil, stderrors.NewAnalysisValidationFailedError(
			fmt.Sprintf("exactly one PRINCIPALE table expected, got %d", principals))
	}

	resolved := b.resolver.ResolvePeriod(periodFromAnalysis(analysis))

	conditions, err := b.buildConditions(analysis.Structure.Conditions, resolved)
	if err != nil {
		return nil, err
	}
	query.Conditions = conditions

	for _, cond := range conditions {
		if cond.Kind == models.ConditionTemporel {
			period := resolved
			query.Period = &period
			break
		}
	}

	return query, nil
}

// buildConditions translates raw condition specs. TEMPOREL expressions are
// parameterized from the resolved period; FILTRE and LOGIQUE conditions pass
// through with parameter back-filling.
func (b *Builder) buildConditions(specs []models.ConditionSpec, resolved models.ResolvedPeriod) ([]models.QueryCondition, error) {
	conditions := make([]models.QueryCondition, 0, len(specs))

	for _, spec := range specs {
		kind := models.ConditionKind(strings.ToUpper(spec.Type))
		cond := models.QueryCondition{
			Kind:       kind,
			Expression: spec.Expression,
			Parameters: make(map[string]any, len(spec.Parametres)),
		}
		for k, v := range spec.Parametres {
			cond.Parameters[k] = v
		}

		placeholders := b.resolver.ExtractPlaceholders(cond.Expression)

		if kind == models.ConditionTemporel {
			if cond.Expression == "" || len(placeholders) == 0 {
				cond.Expression = "date BETWEEN :date_debut AND :date_fin"
				placeholders = []string{"date_debut", "date_fin"}
			}
			for name, value := range b.resolver.FillTemporalParameters(placeholders, resolved) {
				cond.Parameters[name] = value
			}
		} else {
			for _, name := range placeholders {
				if _, ok := cond.Parameters[name]; ok {
					continue
				}
				if name == "type" {
					cond.Parameters[name] = b.filterType
					continue
				}
				return nil, stderrors.NewMissingParameterError(name)
			}
		}

		conditions = append(conditions, cond)
	}

	return conditions, nil
}

// periodFromAnalysis maps the payload's temporality block onto the resolver's
// period model.
func periodFromAnalysis(analysis *models.SemanticAnalysis) models.TemporalPeriod {
	periode := analysis.Analyse.Temporalite.Periode
	dates := analysis.Analyse.Temporalite.Dates
	return models.TemporalPeriod{
		Kind:      models.PeriodKind(strings.ToUpper(periode.Type)),
		Precision: models.PeriodPrecision(strings.ToUpper(periode.Precision)),
		Reference: periode.Reference,
		Start:     dates.Debut,
		End:       dates.Fin,
	}
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
