package ranking

import (
	"sort"
	"time"

	"dealstack-api/internal/models"
)

// Rank scores every candidate deal and returns them in descending score
// order. The sort is stable, so ties keep their catalog order. A positive
// maxResults truncates the list.
func Rank(deals []models.Deal, prefs models.UserPreferences, activity models.UserActivity, card *models.Card, weights Weights, maxResults int, now time.Time) []models.RankedOffer {
	offers := make([]models.RankedOffer, 0, len(deals))
	for _, deal := range deals {
		offers = append(offers, Score(deal, prefs, activity, card, weights, now))
	}

	sort.SliceStable(offers, func(i, j int) bool {
		return offers[i].RankingScore > offers[j].RankingScore
	})

	if maxResults > 0 && len(offers) > maxResults {
		offers = offers[:maxResults]
	}

	return offers
}
