package scoring

import (
	"testing"
	"time"

	"admission-scheduler/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testWeights = Weights{
	SiblingBonus:      3000,
	CompletenessBonus: 5000,
	DistanceWeight:    100,
	UrgencyWeight:     10,
}

func newRequest(id string, submitted time.Time) *model.ConsultationRequest {
	return &model.ConsultationRequest{
		ID:           id,
		GuardianID:   "g-" + id,
		StudentID:    "s-" + id,
		SubmittedAt:  submitted,
		GradeLevel:   3,
		DistanceTier: 2,
	}
}

func TestScoreDeterminism(t *testing.T) {
	scorer := NewScorer(testWeights)
	req := newRequest("r1", time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	req.SiblingEnrolled = true
	req.Complete = true

	first := scorer.Score(req)
	second := scorer.Score(req)
	assert.Equal(t, first, second)
	assert.Zero(t, first.Compare(second))
}

func TestSiblingOutranksCompleteness(t *testing.T) {
	scorer := NewScorer(testWeights)
	submitted := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	sibling := newRequest("r1", submitted)
	sibling.SiblingEnrolled = true
	complete := newRequest("r2", submitted)
	complete.Complete = true

	// The tuple is compared lexicographically: the sibling field decides
	// before the completeness bonus is ever consulted.
	assert.Negative(t, scorer.Score(sibling).Compare(scorer.Score(complete)))
}

func TestNearerAndYoungerRankHigher(t *testing.T) {
	scorer := NewScorer(testWeights)
	submitted := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	near := newRequest("r1", submitted)
	near.DistanceTier = 1
	far := newRequest("r2", submitted)
	far.DistanceTier = 3
	assert.Negative(t, scorer.Score(near).Compare(scorer.Score(far)))

	younger := newRequest("r3", submitted)
	younger.GradeLevel = 1
	older := newRequest("r4", submitted)
	older.GradeLevel = 6
	assert.Negative(t, scorer.Score(younger).Compare(scorer.Score(older)))
}

func TestEarlierSubmissionWinsAmongEquals(t *testing.T) {
	scorer := NewScorer(testWeights)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	early := newRequest("r1", base)
	late := newRequest("r2", base.Add(time.Minute))

	require.Negative(t, scorer.Score(early).Compare(scorer.Score(late)))
	require.Positive(t, scorer.Score(late).Compare(scorer.Score(early)))
}

func TestRequestIDBreaksIdenticalTimestamps(t *testing.T) {
	// Bulk-imported legacy records can share every attribute and the exact
	// submission timestamp; the request id keeps the order total.
	scorer := NewScorer(testWeights)
	submitted := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	a := newRequest("a", submitted)
	b := newRequest("b", submitted)

	assert.Negative(t, scorer.Score(a).Compare(scorer.Score(b)))
	assert.Positive(t, scorer.Score(b).Compare(scorer.Score(a)))
}

func TestZeroWeightsStillTotalOrder(t *testing.T) {
	scorer := NewScorer(Weights{})
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	sibling := newRequest("r1", base.Add(time.Minute))
	sibling.SiblingEnrolled = true
	plain := newRequest("r2", base)

	// With all weights zero only submission time and id order the pool.
	assert.Positive(t, scorer.Score(sibling).Compare(scorer.Score(plain)))
}
