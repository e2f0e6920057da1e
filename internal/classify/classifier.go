// internal/classify/classifier.go
package classify

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"assistant-router/internal/common/config"
	"assistant-router/internal/models"
)

// Classification is the outcome of the keyword pass over a question.
type Classification struct {
	Category         models.Category
	IsExplicitSearch bool
	IsSpecificQuery  bool
}

// Classifier decides a question's category and target agent from fixed
// keyword sets. Matching is case- and accent-insensitive substring
// containment; the keyword data comes from configuration, the algorithm
// lives here.
type Classifier struct {
	searchKeywords    []string
	specificKeywords  []string
	knowledgeKeywords []string
	searchIntents     []string
	domainCategories  map[string]models.Category
}

func NewClassifier(cfg config.RoutingConfig) *Classifier {
	domains := make(map[string]models.Category, len(cfg.DomainCategories)+len(cfg.KnowledgeDomains))
	for domain, cat := range cfg.DomainCategories {
		domains[strings.ToUpper(domain)] = models.Category(cat)
	}
	// knowledge_domains is shorthand for a KNOWLEDGE entry in the domain
	// table; it wins over a conflicting domain_categories entry.
	for _, domain := range cfg.KnowledgeDomains {
		domains[strings.ToUpper(domain)] = models.CategoryKnowledge
	}

	return &Classifier{
		searchKeywords:    foldAll(cfg.SearchKeywords),
		specificKeywords:  foldAll(cfg.SpecificKeywords),
		knowledgeKeywords: foldAll(cfg.KnowledgeKeywords),
		searchIntents:     foldAll(cfg.SearchIntents),
		domainCategories:  domains,
	}
}

// Classify runs the full keyword pass. The explicit-search check wins over
// everything else: a question that literally asks to search is routed to
// SEARCH no matter which specific-query keywords it also contains.
func (c *Classifier) Classify(domain, question, intention string) Classification {
	folded := Fold(question)

	if c.hasSearchKeyword(folded) {
		return Classification{
			Category:         models.CategorySearch,
			IsExplicitSearch: true,
			IsSpecificQuery:  false,
		}
	}

	specific := c.isSpecificQuery(folded, intention)
	return Classification{
		Category:        c.determineCategory(domain, folded, specific),
		IsSpecificQuery: specific,
	}
}

// IsExplicitSearch reports whether the question's literal wording forces
// SEARCH routing.
func (c *Classifier) IsExplicitSearch(question string) bool {
	return c.hasSearchKeyword(Fold(question))
}

// IsSpecificQuery reports whether the question looks like a structured data
// request rather than a document search.
func (c *Classifier) IsSpecificQuery(question, intention string) bool {
	return c.isSpecificQuery(Fold(question), intention)
}

func (c *Classifier) isSpecificQuery(folded, intention string) bool {
	hasSearch := c.hasSearchKeyword(folded)
	hasSpecific := containsAnyKeyword(folded, c.specificKeywords)

	if hasSpecific && !hasSearch {
		return true
	}
	if containsAnyKeyword(Fold(intention), c.searchIntents) {
		return false
	}
	if hasSearch && !hasSpecific {
		return false
	}
	// Tie-break favors structured-query routing.
	return true
}

// DetermineCategory applies the domain table after the search checks.
func (c *Classifier) DetermineCategory(domain, question, intention string) models.Category {
	folded := Fold(question)
	if c.hasSearchKeyword(folded) {
		return models.CategorySearch
	}
	return c.determineCategory(domain, folded, c.isSpecificQuery(folded, intention))
}

func (c *Classifier) determineCategory(domain, folded string, specific bool) models.Category {
	if !specific {
		return models.CategorySearch
	}

	cat, ok := c.domainCategories[strings.ToUpper(domain)]
	if !ok {
		return models.CategoryGeneral
	}

	// Domains flagged KNOWLEDGE only route there when the question actually
	// asks for an explanation; plain lookups still hit the database.
	if cat == models.CategoryKnowledge {
		if containsAnyKeyword(folded, c.knowledgeKeywords) {
			return models.CategoryKnowledge
		}
		return models.CategoryDatabase
	}

	return cat
}

// DetermineAgent is the category-to-agent table lookup.
func (c *Classifier) DetermineAgent(category models.Category) models.Agent {
	return models.AgentForCategory(category)
}

func (c *Classifier) hasSearchKeyword(folded string) bool {
	return containsAnyKeyword(folded, c.searchKeywords)
}

func containsAnyKeyword(folded string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(folded, kw) {
			return true
		}
	}
	return false
}

var diacriticStripper = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// Fold lower-cases a string and strips diacritics, so "Où ça?" matches the
// keyword "ou ca". Keywords and question text go through the same fold.
func Fold(s string) string {
	folded, _, err := transform.String(diacriticStripper, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return folded
}

func foldAll(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		out = append(out, Fold(kw))
	}
	return out
}
