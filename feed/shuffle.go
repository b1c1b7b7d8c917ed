package feed

import (
	"math/rand"

	"scrollmode/models"
)

// Shuffle returns a uniformly random permutation of the candidate set
// using the Fisher-Yates algorithm: walk from the last index down to 1,
// swapping element i with a uniformly chosen element from 0..i. A
// comparison sort over random keys is biased and deliberately not used
// here. The input slice is left untouched.
func Shuffle(items []models.FeedItem, rng *rand.Rand) []models.FeedItem {
	shuffled := make([]models.FeedItem, len(items))
	copy(shuffled, items)

	for i := len(shuffled) - 1; i >= 1; i-- {
		j := rng.Intn(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}

	return shuffled
}
