package scoring

import (
	"admission-scheduler/internal/model"
)

const maxGradeLevel = 6

// Weights configures the priority tuple. All weights are non-negative
// integers; validation happens at config load, not here.
type Weights struct {
	SiblingBonus      int
	CompletenessBonus int
	DistanceWeight    int
	UrgencyWeight     int
}

// Score is an ordered tuple compared lexicographically, higher field values
// first. Submitted holds the negated submission time so that earlier
// submissions rank ahead; RequestID is the final deterministic fallback for
// bulk-imported records sharing the same timestamp.
type Score struct {
	Sibling      int64
	Completeness int64
	Distance     int64
	Urgency      int64
	Submitted    int64
	RequestID    string
}

// Compare returns a negative value when s ranks ahead of other in allocation
// order, positive when behind, and zero only for the same request.
func (s Score) Compare(other Score) int {
	fields := [5][2]int64{
		{s.Sibling, other.Sibling},
		{s.Completeness, other.Completeness},
		{s.Distance, other.Distance},
		{s.Urgency, other.Urgency},
		{s.Submitted, other.Submitted},
	}
	for _, f := range fields {
		if f[0] > f[1] {
			return -1
		}
		if f[0] < f[1] {
			return 1
		}
	}
	switch {
	case s.RequestID < other.RequestID:
		return -1
	case s.RequestID > other.RequestID:
		return 1
	}
	return 0
}

type Scorer struct {
	weights Weights
}

func NewScorer(weights Weights) *Scorer {
	return &Scorer{weights: weights}
}

// Score computes the priority tuple for a request. Pure function: the same
// attributes and submission time always produce the same score.
func (s *Scorer) Score(req *model.ConsultationRequest) Score {
	score := Score{
		RequestID: req.ID,
		Submitted: -req.SubmittedAt.UnixNano(),
	}
	if req.SiblingEnrolled {
		score.Sibling = int64(s.weights.SiblingBonus)
	}
	if req.Complete {
		score.Completeness = int64(s.weights.CompletenessBonus)
	}
	// Nearer families and younger grades rank higher.
	score.Distance = -int64(s.weights.DistanceWeight) * int64(req.DistanceTier)
	score.Urgency = int64(s.weights.UrgencyWeight) * int64(maxGradeLevel+1-req.GradeLevel)
	return score
}
