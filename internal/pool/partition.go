package pool

import (
	"errors"
	"fmt"
)

// ErrInvalidWorkers is returned when the worker count is below one.
var ErrInvalidWorkers = errors.New("worker count must be at least 1")

// Partition splits items into exactly workers contiguous slices whose
// concatenation equals items. The first len(items)%workers slices hold one
// extra item. When there are fewer items than workers the trailing slices are
// empty. The returned slices share items' backing array.
func Partition[T any](items []T, workers int) ([][]T, error) {
	if workers < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidWorkers, workers)
	}
	base := len(items) / workers
	remainder := len(items) % workers

	slices := make([][]T, workers)
	start := 0
	for i := 0; i < workers; i++ {
		end := start + base
		if i < remainder {
			end++
		}
		slices[i] = items[start:end:end]
		start = end
	}
	return slices, nil
}

// Sizes returns the length of each slice.
func Sizes[T any](slices [][]T) []int {
	sizes := make([]int, len(slices))
	for i, s := range slices {
		sizes[i] = len(s)
	}
	return sizes
}
