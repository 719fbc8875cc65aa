package service

import (
	"errors"
	"strings"

	"github.com/boddenberg/leadchat-go/internal/domain"
)

// Tier thresholds. TierOf is the only place they are read.
const (
	qualifiedThreshold = 60
	highValueThreshold = 80
)

// TierOf maps a 0..100 score to its tier.
func TierOf(score int) domain.Tier {
	switch {
	case score >= highValueThreshold:
		return domain.TierHighValue
	case score >= qualifiedThreshold:
		return domain.TierQualified
	default:
		return domain.TierLow
	}
}

// VariantFor selects the visitor confirmation copy for a tier.
func VariantFor(tier domain.Tier) domain.TemplateVariant {
	switch tier {
	case domain.TierHighValue:
		return domain.VariantHighValue
	case domain.TierQualified:
		return domain.VariantQualified
	default:
		return domain.VariantStandard
	}
}

// Attribute weights. They sum to 100 at the top bracket of every field.
const (
	weightContact     = 5
	weightCompany     = 10
	weightPhone       = 10
	weightProjectType = 10
	weightIndustry    = 5
)

// bracket maps accepted spellings of one value to its points.
type bracket struct {
	keys   []string
	points int
}

// Budget brackets, lowest first. Points grow with the bracket.
var budgetPoints = []bracket{
	{[]string{"<10k", "under-10k", "under $10k", "<$10k", "less than $10k"}, 5},
	{[]string{"10k-25k", "$10k-$25k", "10-25k"}, 15},
	{[]string{"25k-50k", "$25k-$50k", "25-50k"}, 25},
	{[]string{"50k-100k", "$50k-$100k", "50-100k", "50k+", "$50k+"}, 30},
	{[]string{"100k+", "$100k+", "over $100k", ">100k", "enterprise"}, 35},
}

// Timelines, slowest first. Sooner means more points.
var timelinePoints = []bracket{
	{[]string{"exploring", "just exploring", "not sure", "unknown"}, 0},
	{[]string{"6+ months", "6+months", "6-12 months", "later"}, 5},
	{[]string{"3-6 months", "3-6months"}, 10},
	{[]string{"1-3 months", "1-3months", "next quarter"}, 20},
	{[]string{"asap", "immediately", "urgent", "this month", "<1 month"}, 25},
}

func lookupPoints(table []bracket, value string) int {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return 0
	}
	for _, row := range table {
		for _, k := range row.keys {
			if v == k {
				return row.points
			}
		}
	}
	return 0
}

// BudgetPoints returns the points for a budget bracket; unknown values score 0.
func BudgetPoints(budget string) int { return lookupPoints(budgetPoints, budget) }

// TimelinePoints returns the points for a timeline; unknown values score 0.
func TimelinePoints(timeline string) int { return lookupPoints(timelinePoints, timeline) }

// ScoreLead computes the qualification score. Weights are additive and
// non-negative so adding a field or moving to a better bracket never lowers
// the score. A lead without name or email scores 0 with an
// *domain.ErrScoringInputIncomplete alongside.
func ScoreLead(a domain.LeadAttributes) (domain.Score, error) {
	var missing []string
	if strings.TrimSpace(a.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(a.Email) == "" {
		missing = append(missing, "email")
	}
	if len(missing) > 0 {
		return domain.Score{Value: 0, Tier: TierOf(0)}, &domain.ErrScoringInputIncomplete{Missing: missing}
	}

	score := weightContact
	if domain.Deref(a.Company) != "" {
		score += weightCompany
	}
	if domain.Deref(a.Phone) != "" {
		score += weightPhone
	}
	if domain.Deref(a.ProjectType) != "" {
		score += weightProjectType
	}
	if domain.Deref(a.Industry) != "" {
		score += weightIndustry
	}
	score += BudgetPoints(domain.Deref(a.BudgetRange))
	score += TimelinePoints(domain.Deref(a.Timeline))

	score = max(0, min(100, score))
	return domain.Score{Value: score, Tier: TierOf(score)}, nil
}

// IsIncomplete reports whether err is a scoring-input error.
func IsIncomplete(err error) bool {
	var inc *domain.ErrScoringInputIncomplete
	return errors.As(err, &inc)
}
