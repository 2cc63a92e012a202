package rating

import (
	"math"
	"sort"
)

const (
	MinReviewsForRanking = 3
	MaxBestSellers       = 20

	wilsonWeight = 0.6
	salesWeight  = 0.4
	salesCap     = 100
)

type Candidate struct {
	ProductID    int64
	TotalReviews int
	WilsonScore  float64
	TotalSold    int
}

type Ranked struct {
	Rank      int     `json:"rank"`
	ProductID int64   `json:"product_id"`
	Score     float64 `json:"score"`
}

// Score blends review confidence with sales volume. Sales saturate at salesCap units.
func Score(c Candidate) float64 {
	sales := math.Min(float64(c.TotalSold)/salesCap, 1)
	return wilsonWeight*c.WilsonScore + salesWeight*sales
}

// Rank keeps candidates with enough reviews and returns at most
// MaxBestSellers of them, best first. Equal scores order by product id.
func Rank(cands []Candidate) []Ranked {
	out := make([]Ranked, 0, len(cands))
	for _, c := range cands {
		if c.TotalReviews < MinReviewsForRanking {
			continue
		}
		out = append(out, Ranked{ProductID: c.ProductID, Score: Score(c)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ProductID < out[j].ProductID
	})
	if len(out) > MaxBestSellers {
		out = out[:MaxBestSellers]
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}
