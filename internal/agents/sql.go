// internal/agents/sql.go
package agents

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"assistant-router/internal/common/config"
	stderrors "assistant-router/internal/common/errors"
	"assistant-router/internal/common/logger"
	"assistant-router/internal/models"
	"assistant-router/internal/temporal"
)

// SQLAgent renders a StructuredQuery into PostgreSQL and executes it.
type SQLAgent struct {
	db       *sql.DB
	resolver *temporal.Resolver
	cfg      config.QueryBuilderAgentConfig
	logger   logger.Logger
}

func NewSQLAgent(db *sql.DB, resolver *temporal.Resolver, cfg config.QueryBuilderAgentConfig, log logger.Logger) *SQLAgent {
	return &SQLAgent{
		db:       db,
		resolver: resolver,
		cfg:      cfg,
		logger:   log.With(map[string]interface{}{"agent": string(models.AgentQueryBuilder)}),
	}
}

func (a *SQLAgent) Name() models.Agent {
	return models.AgentQueryBuilder
}

func (a *SQLAgent) Dispatch(ctx context.Context, analysis *models.AnalysisResult, query *models.StructuredQuery) (*models.AgentResponse, error) {
	if query == nil {
		return nil, stderrors.NewMissingMainTableError()
	}
	main, ok := query.MainTable()
	if !ok {
		return nil, stderrors.NewMissingMainTableError()
	}

	stmt, args, err := a.render(query)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, config.GetDuration(a.cfg.Timeout))
	defer cancel()

	rows, err := a.db.QueryContext(callCtx, stmt, args...)
	if err != nil {
		return nil, stderrors.NewQueryExecutionFailedError(main.Name, err)
	}
	defer rows.Close()

	data, err := scanRows(rows)
	if err != nil {
		return nil, stderrors.NewQueryExecutionFailedError(main.Name, err)
	}

	a.logger.Info("structured query executed", map[string]interface{}{
		"mainTable": main.Name,
		"rows":      len(data),
	})

	return &models.AgentResponse{
		Success:     true,
		SQL:         stmt,
		Explanation: query.Metadata.Description,
		Data:        data,
	}, nil
}

// render builds the SELECT statement. Named :placeholders become positional
// $n arguments in order of first appearance; a placeholder with no bound
// parameter is a validation error, not a silent NULL.
func (a *SQLAgent) render(query *models.StructuredQuery) (string, []any, error) {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(selectColumns(query.Tables), ", "))

	for _, table := range query.Tables {
		if table.Role == models.RolePrincipale {
			fmt.Fprintf(&sb, " FROM %s %s", table.Name, table.Alias)
			break
		}
	}
	for _, table := range query.Tables {
		if table.Role == models.RoleJointe {
			fmt.Fprintf(&sb, " JOIN %s %s ON %s", table.Name, table.Alias, table.JoinCondition)
		}
	}

	var args []any
	positions := map[string]string{}

	if len(query.Conditions) > 0 {
		clauses := make([]string, 0, len(query.Conditions))
		for _, cond := range query.Conditions {
			expr := cond.Expression
			for _, name := range a.resolver.ExtractPlaceholders(expr) {
				pos, seen := positions[name]
				if !seen {
					value, ok := cond.Parameters[name]
					if !ok {
						return "", nil, stderrors.NewMissingParameterError(name)
					}
					args = append(args, value)
					pos = fmt.Sprintf("$%d", len(args))
					positions[name] = pos
				}
				expr = strings.Replace(expr, ":"+name, pos, 1)
			}
			clauses = append(clauses, expr)
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(clauses, " AND "))
	}

	if len(query.GroupBy) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(query.GroupBy, ", "))
	}
	if len(query.OrderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(query.OrderBy, ", "))
	}
	if a.cfg.MaxResults > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", a.cfg.MaxResults)
	}

	return sb.String(), args, nil
}

func selectColumns(tables []models.QueryTable) []string {
	var cols []string
	for _, table := range tables {
		for _, col := range table.Columns {
			if col == "*" || strings.Contains(col, ".") || strings.Contains(col, "(") {
				cols = append(cols, col)
				continue
			}
			cols = append(cols, table.Alias+"."+col)
		}
	}
	if len(cols) == 0 {
		cols = []string{"*"}
	}
	return cols
}

func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var data []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		holders := make([]any, len(columns))
		for i := range values {
			holders[i] = &values[i]
		}
		if err := rows.Scan(holders...); err != nil {
			return nil, err
		}

		record := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				record[col] = string(b)
				continue
			}
			record[col] = values[i]
		}
		data = append(data, record)
	}
	return data, rows.Err()
}
