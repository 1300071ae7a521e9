package cardbenefit

import "dealstack-api/internal/models"

// NextMilestone scans milestones in their supplied order and returns the
// first entry whose threshold exceeds current points plus points earned,
// or nil when every threshold is already reached.
//
// The scan is first-match in source order, not a sorted nearest-threshold
// search: the ordering of the milestone list is caller-significant.
func NextMilestone(milestones []models.Milestone, currentPoints, pointsEarned int) *models.MilestoneProgress {
	pointsAfter := currentPoints + pointsEarned

	for _, m := range milestones {
		if pointsAfter < m.Threshold {
			return &models.MilestoneProgress{
				CurrentPoints:       currentPoints,
				PointsAfterPurchase: pointsAfter,
				NextMilestone:       m.Threshold,
				MilestoneValue:      m.RewardValue,
				PointsToMilestone:   m.Threshold - pointsAfter,
			}
		}
	}

	return nil
}
