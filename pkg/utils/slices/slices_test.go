package slices_test

import (
	"errors"
	"testing"

	"github.com/opst/knitdao/pkg/cmp"
	"github.com/opst/knitdao/pkg/utils/slices"
)

func TestChunk(t *testing.T) {
	for name, testcase := range map[string]struct {
		given []int
		size  int
		then  [][]int
	}{
		"empty":        {given: []int{}, size: 2, then: [][]int{}},
		"fraction":     {given: []int{1, 2, 3, 4, 5}, size: 2, then: [][]int{{1, 2}, {3, 4}, {5}}},
		"exact":        {given: []int{1, 2, 3, 4}, size: 2, then: [][]int{{1, 2}, {3, 4}}},
		"larger chunk": {given: []int{1, 2}, size: 100, then: [][]int{{1, 2}}},
	} {
		t.Run(name, func(t *testing.T) {
			actual := slices.Chunk(testcase.given, testcase.size)
			if !cmp.SliceEqWith(actual, testcase.then, cmp.SliceEq[int]) {
				t.Errorf("Chunk(%v, %d) = %v", testcase.given, testcase.size, actual)
			}
		})
	}
}

func TestMapUntilError(t *testing.T) {
	expectedErr := errors.New("fake")
	_, err := slices.MapUntilError([]int{1, 2, 3}, func(i int) (int, error) {
		if i == 2 {
			return 0, expectedErr
		}
		return i, nil
	})
	if !errors.Is(err, expectedErr) {
		t.Errorf("unexpected error: %v", err)
	}

	actual, err := slices.MapUntilError([]int{1, 2, 3}, func(i int) (int, error) { return i * 2, nil })
	if err != nil {
		t.Fatal(err)
	}
	if !cmp.SliceEq(actual, []int{2, 4, 6}) {
		t.Errorf("unexpected result: %v", actual)
	}
}
