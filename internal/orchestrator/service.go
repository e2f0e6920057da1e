// internal/orchestrator/service.go
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"assistant-router/internal/agents"
	"assistant-router/internal/cache"
	"assistant-router/internal/classify"
	stderrors "assistant-router/internal/common/errors"
	"assistant-router/internal/common/logger"
	"assistant-router/internal/common/metrics"
	"assistant-router/internal/history"
	"assistant-router/internal/llm"
	"assistant-router/internal/models"
	"assistant-router/internal/querybuilder"
)

// Apology is the single user-visible failure mode of the pipeline. Internal
// error kinds are only distinguishable via logs and metrics.
const Apology = "Désolé, je n'ai pas pu traiter votre demande. Veuillez réessayer."

// UrgentNotifier raises an operator alert for urgent questions. Delivery is
// fire-and-forget; the pipeline never waits on it.
type UrgentNotifier interface {
	NotifyUrgent(ctx context.Context, analysis *models.AnalysisResult) error
}

// Service runs a question through the full routing pipeline: cache lookup,
// explicit-search short-circuit, semantic analysis, validation, reorientation,
// structured query build, agent dispatch, response formatting, and cache and
// history writes.
type Service struct {
	classifier *classify.Classifier
	builder    *querybuilder.Builder
	gateway    llm.Gateway
	cache      *cache.ResponseCache
	history    history.Store
	registry   *agents.Registry
	reorienter *Reorienter
	notifier   UrgentNotifier
	logger     logger.Logger

	historyEnabled bool
	template       string
}

type Option func(*Service)

// WithNotifier attaches the urgent-question alert hook.
func WithNotifier(n UrgentNotifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithAnalysisTemplate overrides the gateway analysis template name.
func WithAnalysisTemplate(name string) Option {
	return func(s *Service) { s.template = name }
}

func NewService(
	classifier *classify.Classifier,
	builder *querybuilder.Builder,
	gateway llm.Gateway,
	responseCache *cache.ResponseCache,
	historyStore history.Store,
	registry *agents.Registry,
	reorienter *Reorienter,
	historyEnabled bool,
	log logger.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		classifier:     classifier,
		builder:        builder,
		gateway:        gateway,
		cache:          responseCache,
		history:        historyStore,
		registry:       registry,
		reorienter:     reorienter,
		logger:         log.With(map[string]interface{}{"component": "orchestrator"}),
		historyEnabled: historyEnabled,
		template:       "analyse_complete",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ask answers a question. It never returns an error: any failure inside the
// pipeline collapses to the fixed apology answer. Internal errors are logged
// and counted, never leaked.
func (s *Service) Ask(ctx context.Context, req *models.AskRequest) (resp *models.AskResponse) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("pipeline panic recovered", map[string]interface{}{
				"panic": fmt.Sprint(r),
			})
			metrics.QuestionsFailed.WithLabelValues("PANIC").Inc()
			resp = &models.AskResponse{Answer: Apology}
		}
	}()

	resp, err := s.process(ctx, req)
	if err != nil {
		code := stderrors.CodeOf(err)
		s.logger.Error("request failed", map[string]interface{}{
			"question":  req.Question,
			"errorCode": string(code),
			"error":     err.Error(),
		})
		metrics.QuestionsFailed.WithLabelValues(string(code)).Inc()
		resp = &models.AskResponse{Answer: Apology}
	}

	s.writeHistory(ctx, req, resp.Answer)
	return resp
}

func (s *Service) process(ctx context.Context, req *models.AskRequest) (*models.AskResponse, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, stderrors.NewAnalysisValidationFailedError("question is empty")
	}

	// Cache check. A cached general answer is final; a cached routed analysis
	// skips classification and goes straight to dispatch against live data.
	if entry, err := s.cache.Get(ctx, question); err == nil {
		if entry.Analysis == nil || entry.Analysis.TargetAgent == models.AgentGeneral {
			s.logger.Info("answered from cache", map[string]interface{}{
				"question": question,
			})
			return &models.AskResponse{Answer: entry.Answer}, nil
		}
		return s.dispatch(ctx, question, entry.Analysis, nil)
	}

	// Explicit search bypasses semantic analysis entirely.
	if s.classifier.IsExplicitSearch(question) {
		analysis := &models.AnalysisResult{
			CorrectedQuestion: question,
			Intention:         "recherche_documentaire",
			Category:          models.CategorySearch,
			TargetAgent:       models.AgentElasticsearch,
			Priority:          models.PriorityNormal,
			Entities:          []string{},
			ExplicitSearch:    true,
			CreatedAt:         time.Now().UTC(),
		}
		return s.dispatch(ctx, question, analysis, nil)
	}

	payload, err := s.gateway.AnalyzeQuestion(ctx, question, s.template)
	if err != nil {
		return nil, err
	}

	analysis := s.buildAnalysis(question, payload)

	if analysis.TargetAgent == models.AgentGeneral {
		return s.answerGeneral(ctx, question, analysis)
	}

	if err := s.builder.Validate(payload); err != nil {
		return nil, err
	}

	analysis = s.reorienter.Reorient(ctx, question, analysis)

	var query *models.StructuredQuery
	if analysis.TargetAgent == models.AgentQueryBuilder {
		query, err = s.builder.Build(payload)
		if err != nil {
			return nil, err
		}
		s.attachQueryMetadata(analysis, payload, query)
	}

	// Reorientation may have redirected to the general path.
	if analysis.TargetAgent == models.AgentGeneral {
		return s.answerGeneral(ctx, question, analysis)
	}

	return s.dispatch(ctx, question, analysis, query)
}

// buildAnalysis turns the semantic payload into the canonical routing
// decision. The domain driving the category table is the principal entity.
func (s *Service) buildAnalysis(question string, payload *models.SemanticAnalysis) *models.AnalysisResult {
	domain := payload.Analyse.Entites.Principale.Nom
	intention := payload.Analyse.Intention.Action

	classification := s.classifier.Classify(domain, question, intention)

	entities := make([]string, 0, 1+len(payload.Analyse.Entites.Secondaires))
	if domain != "" {
		entities = append(entities, domain)
	}
	entities = append(entities, payload.Analyse.Entites.Secondaires...)

	analysis := &models.AnalysisResult{
		CorrectedQuestion: question,
		Intention:         intention,
		Category:          classification.Category,
		TargetAgent:       s.classifier.DetermineAgent(classification.Category),
		Priority:          derivePriority(question, payload),
		Entities:          entities,
		Context:           payload.Analyse.Intention.Objectif,
		ExplicitSearch:    classification.IsExplicitSearch,
		CreatedAt:         time.Now().UTC(),
	}

	s.logger.Info("question classified", map[string]interface{}{
		"question": question,
		"domain":   domain,
		"category": string(analysis.Category),
		"agent":    string(analysis.TargetAgent),
		"priority": string(analysis.Priority),
	})

	if s.notifier != nil && analysis.Priority == models.PriorityUrgent {
		go func(a models.AnalysisResult) {
			nctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = s.notifier.NotifyUrgent(nctx, &a)
		}(*analysis)
	}

	return analysis
}

// derivePriority reads urgency signals from the question and the explicit
// constraints the analysis extracted.
func derivePriority(question string, payload *models.SemanticAnalysis) models.Priority {
	folded := classify.Fold(question)
	for _, c := range payload.Analyse.Contraintes.Explicites {
		folded += " " + classify.Fold(c)
	}
	switch {
	case strings.Contains(folded, "urgent") || strings.Contains(folded, "immediatement"):
		return models.PriorityUrgent
	case strings.Contains(folded, "aujourd'hui") || strings.Contains(folded, "des que possible"):
		return models.PriorityHaute
	default:
		return models.PriorityNormal
	}
}

// attachQueryMetadata records the structured-query derivation on the decision
// so cached and logged results explain themselves.
func (s *Service) attachQueryMetadata(analysis *models.AnalysisResult, payload *models.SemanticAnalysis, query *models.StructuredQuery) {
	meta := &models.AnalysisMetadata{
		IdentifiedTables: &models.TableBreakdown{},
		TemporalRange:    query.Period,
	}

	fields := &models.FieldBreakdown{
		Selection: payload.Analyse.Informations.Champs,
		Group:     query.GroupBy,
	}
	for _, table := range query.Tables {
		meta.ConcernedTables = append(meta.ConcernedTables, table.Name)
		if table.Role == models.RolePrincipale {
			meta.IdentifiedTables.Main = table.Name
		} else {
			meta.IdentifiedTables.Joined = append(meta.IdentifiedTables.Joined, table.Name)
		}
	}
	if len(fields.Selection) == 0 {
		for _, table := range query.Tables {
			fields.Selection = append(fields.Selection, table.Columns...)
		}
	}

	filters := &models.FilterBreakdown{}
	paramNames := map[string]struct{}{}
	for _, cond := range query.Conditions {
		if cond.Kind == models.ConditionTemporel {
			filters.Temporal = append(filters.Temporal, cond.Expression)
		} else {
			filters.Logical = append(filters.Logical, cond.Expression)
		}
		for name := range cond.Parameters {
			paramNames[name] = struct{}{}
		}
	}
	for name := range paramNames {
		fields.Filter = append(fields.Filter, name)
	}
	sort.Strings(fields.Filter)
	meta.RequiredFields = fields

	if len(filters.Temporal) > 0 || len(filters.Logical) > 0 {
		meta.Filters = filters
	}
	if len(query.OrderBy) > 0 {
		meta.QueryParameters = &models.QueryParameters{Sort: query.OrderBy}
	}

	analysis.Metadata = meta
}

// dispatch sends the decision to its agent and formats the reply. Successful
// answers go through the cache's write policy, which drops routed agents.
func (s *Service) dispatch(ctx context.Context, question string, analysis *models.AnalysisResult, query *models.StructuredQuery) (*models.AskResponse, error) {
	client, ok := s.registry.Lookup(analysis.TargetAgent)
	if !ok {
		return nil, stderrors.NewDispatchFailedError(string(analysis.TargetAgent),
			fmt.Errorf("no client registered"))
	}

	start := time.Now()
	reply, err := client.Dispatch(ctx, analysis, query)
	metrics.DispatchDuration.WithLabelValues(string(analysis.TargetAgent)).
		Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	if !reply.Success {
		return nil, stderrors.NewDispatchFailedError(string(analysis.TargetAgent),
			fmt.Errorf("%s", reply.Error))
	}

	metrics.QuestionsRouted.WithLabelValues(
		string(analysis.TargetAgent), string(analysis.Category)).Inc()

	answer := s.formatResponse(analysis, reply)

	if err := s.cache.Set(ctx, question, answer, analysis); err != nil {
		s.logger.Warn("cache write failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return &models.AskResponse{Answer: answer, Results: reply.Data}, nil
}

// formatResponse builds the natural-language answer from a dispatch reply.
// Availability checks get a scheduling-style summary; everything else passes
// the agent's explanation through.
func (s *Service) formatResponse(analysis *models.AnalysisResult, reply *models.AgentResponse) string {
	if isAvailabilityIntent(analysis.Intention) && len(reply.Data) > 0 {
		return formatAvailability(reply.Data)
	}

	if reply.Explanation != "" {
		if len(reply.Data) > 0 {
			return fmt.Sprintf("%s (%d résultat(s))", reply.Explanation, len(reply.Data))
		}
		return reply.Explanation
	}
	if len(reply.Data) == 0 {
		return "Aucun résultat trouvé."
	}
	return fmt.Sprintf("%d résultat(s) trouvé(s).", len(reply.Data))
}

func isAvailabilityIntent(intention string) bool {
	folded := classify.Fold(intention)
	return strings.Contains(folded, "consult_availability") ||
		strings.Contains(folded, "verifier_disponibilite") ||
		strings.Contains(folded, "verify availability")
}

// formatAvailability renders a record list as a short scheduling summary.
func formatAvailability(records []map[string]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Disponibilités trouvées (%d):\n", len(records))
	for _, rec := range records {
		name := firstString(rec, "nom", "name", "ressource")
		start := firstString(rec, "date_debut", "debut", "start")
		end := firstString(rec, "date_fin", "fin", "end")
		switch {
		case name != "" && start != "":
			fmt.Fprintf(&b, "- %s: du %s au %s\n", name, start, end)
		case name != "":
			fmt.Fprintf(&b, "- %s\n", name)
		default:
			fmt.Fprintf(&b, "- %v\n", rec)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func firstString(rec map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := rec[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// answerGeneral handles questions with no structured dispatch: the corrected
// question goes to the model with a role preamble, and the text reply is
// cached.
func (s *Service) answerGeneral(ctx context.Context, question string, analysis *models.AnalysisResult) (*models.AskResponse, error) {
	preamble := fmt.Sprintf(
		"Tu es l'assistant d'une entreprise du bâtiment. Catégorie de la question: %s. "+
			"Réponds en français, de façon concise et professionnelle.",
		analysis.Category)

	answer, err := s.gateway.SendMessage(ctx, analysis.CorrectedQuestion, llm.Options{
		System: preamble,
	})
	if err != nil {
		return nil, err
	}
	answer = strings.TrimSpace(answer)

	metrics.QuestionsRouted.WithLabelValues(
		string(models.AgentGeneral), string(analysis.Category)).Inc()

	if err := s.cache.Set(ctx, question, answer, analysis); err != nil {
		s.logger.Warn("cache write failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return &models.AskResponse{Answer: answer}, nil
}

// writeHistory appends the question and the final answer, in that order. A
// failed append is logged, never surfaced.
func (s *Service) writeHistory(ctx context.Context, req *models.AskRequest, answer string) {
	if !s.historyEnabled || !req.UseHistory || req.UserID == "" || s.history == nil {
		return
	}
	if err := s.history.Append(ctx, req.UserID, history.RoleUser, req.Question); err != nil {
		s.logger.Warn("history write failed", map[string]interface{}{
			"userId": req.UserID,
			"error":  err.Error(),
		})
		return
	}
	if err := s.history.Append(ctx, req.UserID, history.RoleAssistant, answer); err != nil {
		s.logger.Warn("history write failed", map[string]interface{}{
			"userId": req.UserID,
			"error":  err.Error(),
		})
	}
}
