package exam

import (
	"fmt"
	"hash/fnv"
	"math/rand"
)

// ShuffleQuestions returns a copy of qs in an order fixed by seed, so the
// same attempt always sees the same sequence.
func ShuffleQuestions(qs []Question, seed int64) []Question {
	out := make([]Question, len(qs))
	copy(out, qs)
	r := rand.New(rand.NewSource(seed))
	r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func attemptSeed(userID, examID int64) int64 {
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "%d:%d", userID, examID)
	return int64(h.Sum64())
}

// StripAnswerKeys hides the correct option indices from an exam copy.
func StripAnswerKeys(qs []Question) []Question {
	out := make([]Question, len(qs))
	for i, q := range qs {
		q.CorrectOptionIndex = nil
		out[i] = q
	}
	return out
}
