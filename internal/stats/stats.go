package stats

import (
	"time"

	"github.com/shopspring/decimal"

	"donation-api/internal/currency"
	"donation-api/internal/repository"
)

// Impact model constants.
const (
	BaseLives         = 5000
	BaseCommunities   = 20
	LivesPerCommunity = 5000
	FoundationYear    = 2016
)

// LivesPerDollar is one life touched per $10 donated.
var LivesPerDollar = decimal.RequireFromString("0.1")

type Impact struct {
	LivesTouched        int64           `json:"lives_touched"`
	CommunitiesServed   int64           `json:"communities_served"`
	YearsOfImpact       int             `json:"years_of_impact"`
	TotalDonationsCount int             `json:"total_donations_count"`
	TotalAmountUSD      decimal.Decimal `json:"total_amount_usd"`
	LastUpdated         time.Time       `json:"last_updated"`
}

type CalculationNotes struct {
	LivesPerDollar    decimal.Decimal `json:"lives_per_dollar"`
	LivesPerCommunity int             `json:"lives_per_community"`
	FoundationYear    int             `json:"foundation_year"`
	BaseLives         int             `json:"base_lives"`
	BaseCommunities   int             `json:"base_communities"`
}

// Summary is the public statistics payload.
type Summary struct {
	Impact           Impact                      `json:"impact_stats"`
	TotalsByCurrency map[string]decimal.Decimal  `json:"totals_by_currency"`
	ProviderStats    map[string]int              `json:"provider_stats"`
	RecentDonations  []repository.RecentDonation `json:"recent_donations"`
	TotalDonations   int                         `json:"total_donations"`
	Notes            CalculationNotes            `json:"calculation_notes"`
	Error            string                      `json:"error,omitempty"`
}

// Summarize folds succeeded donations into totals and impact figures. Nil
// inputs produce the base values.
func Summarize(amounts []repository.SucceededAmount, recent []repository.RecentDonation, now time.Time) Summary {
	totals := map[string]decimal.Decimal{}
	providers := map[string]int{}
	totalUSD := decimal.Zero
	for _, a := range amounts {
		code := currency.Normalize(a.Currency)
		totals[code] = totals[code].Add(a.Amount)
		providers[a.PaymentProvider]++
		totalUSD = totalUSD.Add(currency.ToUSD(a.Amount, code))
	}
	if recent == nil {
		recent = []repository.RecentDonation{}
	}

	donatedLives := totalUSD.Mul(LivesPerDollar).Floor().IntPart()
	return Summary{
		Impact: Impact{
			LivesTouched:        BaseLives + donatedLives,
			CommunitiesServed:   BaseCommunities + donatedLives/LivesPerCommunity,
			YearsOfImpact:       now.Year() - FoundationYear + 1,
			TotalDonationsCount: len(amounts),
			TotalAmountUSD:      totalUSD.Round(2),
			LastUpdated:         now.UTC(),
		},
		TotalsByCurrency: totals,
		ProviderStats:    providers,
		RecentDonations:  recent,
		TotalDonations:   len(amounts),
		Notes: CalculationNotes{
			LivesPerDollar:    LivesPerDollar,
			LivesPerCommunity: LivesPerCommunity,
			FoundationYear:    FoundationYear,
			BaseLives:         BaseLives,
			BaseCommunities:   BaseCommunities,
		},
	}
}
