// internal/orchestrator/reorient.go
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"assistant-router/internal/common/logger"
	"assistant-router/internal/common/metrics"
	"assistant-router/internal/llm"
	"assistant-router/internal/models"
)

// Reorienter is the second-guess pass over a routing decision. It asks the
// model gateway to critique the decision and overrides it only when the
// critique is confident and actually disagrees. It is best-effort throughout:
// every gateway or parse failure returns the original analysis unchanged.
type Reorienter struct {
	gateway   llm.Gateway
	threshold float64
	logger    logger.Logger
}

func NewReorienter(gateway llm.Gateway, threshold float64, log logger.Logger) *Reorienter {
	return &Reorienter{
		gateway:   gateway,
		threshold: threshold,
		logger:    log.With(map[string]interface{}{"component": "reorient"}),
	}
}

// Reorient critiques a routing decision and applies an override when the
// verdict clears the confidence threshold and names a different agent. HAUTE
// priority decisions are trusted as-is and skip the pass entirely.
func (r *Reorienter) Reorient(ctx context.Context, question string, analysis *models.AnalysisResult) *models.AnalysisResult {
	if analysis.Priority == models.PriorityHaute {
		return analysis
	}

	reply, err := r.gateway.SendJSON(ctx, critiquePrompt(question, analysis), llm.Options{
		Temperature: 0.2,
	})
	if err != nil {
		r.logger.Debug("reorientation skipped, gateway unavailable", map[string]interface{}{
			"error": err.Error(),
		})
		return analysis
	}

	verdict, err := parseVerdict(reply)
	if err != nil {
		r.logger.Debug("reorientation skipped, unparsable verdict", map[string]interface{}{
			"error": err.Error(),
		})
		return analysis
	}

	if verdict.Confidence <= r.threshold || verdict.NewAgent == analysis.TargetAgent {
		return analysis
	}

	metrics.ReorientationOverrides.WithLabelValues(
		string(analysis.TargetAgent), string(verdict.NewAgent)).Inc()
	r.logger.Info("routing overridden", map[string]interface{}{
		"fromAgent":  string(analysis.TargetAgent),
		"toAgent":    string(verdict.NewAgent),
		"confidence": verdict.Confidence,
	})

	analysis.Category = verdict.NewCategory
	analysis.TargetAgent = verdict.NewAgent
	analysis.AppendContext(" | Réorienté: " + verdict.Explanation)
	return analysis
}

// critiquePrompt enumerates the available agents and the current decision and
// asks for a JSON verdict.
func critiquePrompt(question string, analysis *models.AnalysisResult) string {
	var b strings.Builder
	b.WriteString("Tu es un superviseur de routage pour un assistant d'entreprise.\n")
	b.WriteString("Agents disponibles:\n")
	b.WriteString("- general: conversation générale, pas d'accès aux données\n")
	b.WriteString("- querybuilder: requêtes SQL structurées sur la base métier\n")
	b.WriteString("- elasticsearch: recherche de documents en texte intégral\n")
	b.WriteString("- rag: questions de connaissance nécessitant une explication\n")
	b.WriteString("- workflow: déclenchement de processus métier\n\n")
	fmt.Fprintf(&b, "Question: %q\n", question)
	fmt.Fprintf(&b, "Décision actuelle: catégorie=%s, agent=%s, intention=%s\n\n",
		analysis.Category, analysis.TargetAgent, analysis.Intention)
	b.WriteString("La décision est-elle correcte? Réponds uniquement en JSON:\n")
	b.WriteString(`{"newCategory": "...", "newAgent": "...", "explanation": "...", "confidence": 0.0}`)
	return b.String()
}

func parseVerdict(reply map[string]any) (*models.ReorientationVerdict, error) {
	raw, err := json.Marshal(reply)
	if err != nil {
		return nil, err
	}
	var verdict models.ReorientationVerdict
	if err := json.Unmarshal(raw, &verdict); err != nil {
		return nil, err
	}

	// Model replies are not case-reliable; fold onto the canonical enums
	// before any comparison or assignment.
	verdict.NewAgent = models.Agent(strings.ToLower(strings.TrimSpace(string(verdict.NewAgent))))
	verdict.NewCategory = models.Category(strings.ToUpper(strings.TrimSpace(string(verdict.NewCategory))))

	switch verdict.NewAgent {
	case models.AgentGeneral, models.AgentQueryBuilder, models.AgentElasticsearch,
		models.AgentRAG, models.AgentWorkflow:
	case "":
		return nil, fmt.Errorf("verdict has no agent")
	default:
		return nil, fmt.Errorf("verdict names unknown agent %q", verdict.NewAgent)
	}

	switch verdict.NewCategory {
	case models.CategoryGeneral, models.CategoryDatabase, models.CategorySearch,
		models.CategoryKnowledge, models.CategoryWorkflow:
	default:
		verdict.NewCategory = models.CategoryForAgent(verdict.NewAgent)
	}

	return &verdict, nil
}
