package lead

// maxScore caps the computed lead score.
const maxScore = 100

var sourceScores = map[string]int{
	SourceReferral: 30,
	SourceWebsite:  25,
	SourceWalkIn:   20,
	SourceGoogle:   15,
	SourcePhone:    15,
	SourceFacebook: 10,
}

// Score derives the lead score from source, budget, interest, and data
// completeness. Budget only counts when both bounds are given; an
// unknown source contributes nothing.
func Score(dto CreateLeadDTO) int {
	score := sourceScores[dto.Source]

	if dto.BudgetMin != nil && dto.BudgetMax != nil {
		switch {
		case *dto.BudgetMin > 500000:
			score += 25
		case *dto.BudgetMin > 300000:
			score += 15
		default:
			score += 10
		}
	}

	switch dto.InterestType {
	case InterestSell:
		score += 25
	case InterestBuy:
		score += 20
	default:
		score += 10
	}

	if dto.Phone != nil && *dto.Phone != "" {
		score += 10
	}
	if dto.Email != nil && *dto.Email != "" {
		score += 10
	}
	if len(dto.PropertyPreferences) > 0 {
		score += 5
	}

	if score > maxScore {
		score = maxScore
	}
	return score
}

// PriorityFor maps a score to a work priority. Referrals are always
// high priority regardless of score.
func PriorityFor(score int, source string) string {
	if score >= 80 || source == SourceReferral {
		return "high"
	}
	if score >= 60 {
		return "medium"
	}
	return "low"
}
