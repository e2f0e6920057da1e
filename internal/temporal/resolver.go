// internal/temporal/resolver.go
package temporal

import (
	"regexp"
	"strings"
	"time"

	"assistant-router/internal/common/logger"
	"assistant-router/internal/models"
)

const dateLayout = "2006-01-02"

var placeholderPattern = regexp.MustCompile(`:([a-zA-Z0-9_]+)`)

// Resolver turns abstract time period descriptors into concrete date spans
// and binds :placeholder tokens in filter expressions to those dates.
type Resolver struct {
	now    func() time.Time
	logger logger.Logger
}

func NewResolver(log logger.Logger) *Resolver {
	return &Resolver{
		now:    time.Now,
		logger: log.With(map[string]interface{}{"component": "temporal"}),
	}
}

// NewResolverAt fixes the reference clock. Used by tests; DYNAMIQUE periods
// resolve differently on different days, which is intended behavior and the
// reason the clock is injectable.
func NewResolverAt(now func() time.Time, log logger.Logger) *Resolver {
	return &Resolver{
		now:    now,
		logger: log.With(map[string]interface{}{"component": "temporal"}),
	}
}

// ExtractPlaceholders scans an expression for :identifier tokens and returns
// them in order of first appearance. Duplicates are kept as they occur;
// callers deduplicate when they need to.
func (r *Resolver) ExtractPlaceholders(expression string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(expression, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

// ResolvePeriod computes the concrete start/end dates for a period.
//
// FIXE periods return their explicit bounds; missing bounds default to today.
// DYNAMIQUE SEMAINE resolves to the next calendar week (Monday through
// Sunday, Monday strictly after today). DYNAMIQUE MOIS resolves to the next
// calendar month. Any other dynamic combination falls back to the FIXE
// behavior.
func (r *Resolver) ResolvePeriod(period models.TemporalPeriod) models.ResolvedPeriod {
	today := r.now()

	if period.Kind == models.PeriodDynamique {
		switch period.Precision {
		case models.PrecisionSemaine:
			return nextWeek(today)
		case models.PrecisionMois:
			return nextMonth(today)
		}
	}

	resolved := models.ResolvedPeriod{
		Start: period.Start,
		End:   period.End,
	}
	if resolved.Start == "" {
		resolved.Start = today.Format(dateLayout)
	}
	if resolved.End == "" {
		resolved.End = today.Format(dateLayout)
	}
	return resolved
}

// FillTemporalParameters binds each placeholder to a bound of the resolved
// period: names containing debut/start get the start date, fin/end get the
// end date. Anything else defaults to the start date and is logged rather
// than silently dropped.
func (r *Resolver) FillTemporalParameters(placeholders []string, resolved models.ResolvedPeriod) map[string]any {
	params := make(map[string]any, len(placeholders))
	for _, name := range placeholders {
		switch {
		case containsAny(name, "debut", "start"):
			params[name] = resolved.Start
		case containsAny(name, "fin", "end"):
			params[name] = resolved.End
		default:
			r.logger.Warn("unrecognized temporal placeholder, defaulting to start date", map[string]interface{}{
				"placeholder": name,
			})
			params[name] = resolved.Start
		}
	}
	return params
}

// nextWeek returns the Monday-to-Sunday span of the week after the current
// one. The Monday is strictly in the future: today + (8 - isoWeekday) days.
func nextWeek(today time.Time) models.ResolvedPeriod {
	isoWeekday := int(today.Weekday())
	if isoWeekday == 0 { // time.Sunday
		isoWeekday = 7
	}
	start := today.AddDate(0, 0, 8-isoWeekday)
	end := start.AddDate(0, 0, 6)
	return models.ResolvedPeriod{
		Start: start.Format(dateLayout),
		End:   end.Format(dateLayout),
	}
}

// nextMonth returns the full span of the next calendar month.
func nextMonth(today time.Time) models.ResolvedPeriod {
	start := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location()).AddDate(0, 1, 0)
	end := start.AddDate(0, 1, -1)
	return models.ResolvedPeriod{
		Start: start.Format(dateLayout),
		End:   end.Format(dateLayout),
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
