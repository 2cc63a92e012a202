package rating

import "math"

const (
	// Z is the normal quantile for a 95% confidence interval.
	Z = 1.96

	// MinReviewsForWilson is the review count below which the score is 0.
	MinReviewsForWilson = 10

	// PositiveRating is the lowest star rating counted as positive.
	PositiveRating = 4
)

// Wilson returns the lower bound of the Wilson score interval for positive
// successes out of total trials. It is 0 below MinReviewsForWilson.
func Wilson(positive, total int) float64 {
	if total < MinReviewsForWilson || positive <= 0 {
		return 0
	}
	if positive > total {
		positive = total
	}
	n := float64(total)
	p := float64(positive) / n
	z2 := Z * Z
	centre := p + z2/(2*n)
	margin := Z * math.Sqrt((p*(1-p)+z2/(4*n))/n)
	return (centre - margin) / (1 + z2/n)
}
