package device

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func TestChooseGroup(t *testing.T) {
	testCases := []struct {
		name   string
		scores []int
		want   int
	}{
		{name: "single", scores: []int{1}, want: 0},
		{name: "highest wins", scores: []int{1, 3, 2}, want: 1},
		{name: "first on ties", scores: []int{0, 2, 2}, want: 1},
		{name: "zero never chosen", scores: []int{0, 0, 1}, want: 2},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := chooseGroup(tc.scores)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestChooseGroupNoneSuitable(t *testing.T) {
	for _, scores := range [][]int{nil, {0}, {0, 0, 0}} {
		_, err := chooseGroup(scores)
		require.True(t, errors.Is(err, ErrNoSuitableDevice), "%v: %+v", scores, err)
	}
}

func TestPickFamilies(t *testing.T) {
	testCases := []struct {
		name     string
		families []queueFamily
		present  map[int]bool
		graphics *int
		presentF *int
		probes   int
	}{
		{
			name:     "shared family",
			families: []queueFamily{{graphics: true, count: 1}, {graphics: true, count: 1}},
			present:  map[int]bool{0: true, 1: true},
			graphics: intPtr(0),
			presentF: intPtr(0),
			probes:   1,
		},
		{
			name:     "split families",
			families: []queueFamily{{graphics: false, count: 1}, {graphics: true, count: 2}, {graphics: true, count: 1}},
			present:  map[int]bool{0: true},
			graphics: intPtr(1),
			presentF: intPtr(0),
			probes:   1,
		},
		{
			name:     "empty family skipped",
			families: []queueFamily{{graphics: true, count: 0}, {graphics: true, count: 1}},
			present:  map[int]bool{0: true, 1: true},
			graphics: intPtr(1),
			presentF: intPtr(1),
			probes:   1,
		},
		{
			name:     "no presentation",
			families: []queueFamily{{graphics: true, count: 1}, {graphics: false, count: 1}},
			present:  map[int]bool{},
			graphics: intPtr(0),
			probes:   2,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			probes := 0
			indices, err := pickFamilies(tc.families, func(idx int) (bool, error) {
				probes++
				return tc.present[idx], nil
			})
			require.NoError(t, err)
			require.Equal(t, tc.graphics, indices.GraphicsFamily)
			require.Equal(t, tc.presentF, indices.PresentFamily)
			require.Equal(t, tc.graphics != nil && tc.presentF != nil, indices.IsComplete())
			require.Equal(t, tc.probes, probes)
		})
	}
}

func TestPickFamiliesPropagatesError(t *testing.T) {
	failure := errors.New("surface lost")
	_, err := pickFamilies([]queueFamily{{graphics: true, count: 1}}, func(int) (bool, error) {
		return false, failure
	})
	require.ErrorIs(t, err, failure)
}

func TestQueueFamilyIndicesUnique(t *testing.T) {
	shared := QueueFamilyIndices{GraphicsFamily: intPtr(2), PresentFamily: intPtr(2)}
	require.True(t, shared.Shared())
	require.Equal(t, []int{2}, shared.Unique())

	split := QueueFamilyIndices{GraphicsFamily: intPtr(0), PresentFamily: intPtr(3)}
	require.False(t, split.Shared())
	require.Equal(t, []int{0, 3}, split.Unique())
}

func intPtr(i int) *int {
	return &i
}
