package trainer

import (
	"math/rand"
	"sort"

	"github.com/pkg/errors"
)

var ErrTooFewSources = errors.New("too few sources per example for distinct source index tuples")

// Plan holds the sampling decisions of one epoch. It is never modified
// after NewPlan returns.
type Plan struct {
	IndexTuples     [][]int
	RequiredIndices []int
	// RGBPermutation is nil when no permutation is applied.
	RGBPermutation []int
}

func NewPlan(rnd *rand.Rand, sourcesPerExample, tuples, sourcesPerTarget int, useRGBPermutation bool) (*Plan, error) {
	indexTuples, required, err := SourceIndexTuples(rnd, sourcesPerExample, tuples, sourcesPerTarget)
	if err != nil {
		return nil, err
	}
	var plan = &Plan{
		IndexTuples:     indexTuples,
		RequiredIndices: required,
	}
	if useRGBPermutation {
		plan.RGBPermutation = RGBPermutation(rnd)
	}
	return plan, nil
}

// SourceIndexTuples picks which stored sources of an example form the inputs
// of a sample. With one source per target every index is used the same
// number of times and the remainder is random. With more, every tuple holds
// distinct random indices.
func SourceIndexTuples(rnd *rand.Rand, sourcesPerExample, tuples, sourcesPerTarget int) (indexTuples [][]int, requiredIndices []int, err error) {
	if sourcesPerExample < sourcesPerTarget {
		return nil, nil, errors.Wrapf(ErrTooFewSources, "%d sources per example, %d per target",
			sourcesPerExample, sourcesPerTarget)
	}
	if sourcesPerTarget < 1 || tuples < 1 {
		return nil, nil, errors.Errorf("invalid tuple request: %d tuples of %d sources", tuples, sourcesPerTarget)
	}

	indexTuples = make([][]int, 0, tuples)
	if sourcesPerTarget == 1 {
		var cycles = tuples / sourcesPerExample
		for c := 0; c < cycles; c++ {
			for index := 0; index < sourcesPerExample; index++ {
				indexTuples = append(indexTuples, []int{index})
			}
		}
		for i := 0; i < tuples%sourcesPerExample; i++ {
			indexTuples = append(indexTuples, []int{rnd.Intn(sourcesPerExample)})
		}
	} else {
		for i := 0; i < tuples; i++ {
			var tuple = make([]int, 0, sourcesPerTarget)
			for len(tuple) < sourcesPerTarget {
				var index = rnd.Intn(sourcesPerExample)
				if !contains(tuple, index) {
					tuple = append(tuple, index)
				}
			}
			indexTuples = append(indexTuples, tuple)
		}
	}

	var seen = make(map[int]bool)
	for _, tuple := range indexTuples {
		for _, index := range tuple {
			if !seen[index] {
				seen[index] = true
				requiredIndices = append(requiredIndices, index)
			}
		}
	}
	sort.Ints(requiredIndices)
	return indexTuples, requiredIndices, nil
}

// RGBPermutation draws one of the six channel orderings, nil for the identity.
func RGBPermutation(rnd *rand.Rand) []int {
	var perm = rnd.Perm(3)
	if perm[0] == 0 && perm[1] == 1 && perm[2] == 2 {
		return nil
	}
	return perm
}

func contains(a []int, x int) bool {
	for _, v := range a {
		if v == x {
			return true
		}
	}
	return false
}
