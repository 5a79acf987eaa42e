package pyramid

import "fmt"

// Window is an inclusive item range [Start, End] within one level.
type Window struct {
	Start int
	End   int
}

// PlanWindows lays sliding windows over totalItems items. Each window spans
// [start, min(start+windowSize-1, totalItems-1)] and starts advance by
// stride until they pass the last item. The last window may be shorter than
// windowSize; with stride < windowSize consecutive windows overlap.
func PlanWindows(totalItems, windowSize, stride int) ([]Window, error) {
	if totalItems < 1 {
		return nil, fmt.Errorf("total items must be at least 1, got %d", totalItems)
	}
	if windowSize < 1 {
		return nil, fmt.Errorf("window size must be at least 1, got %d", windowSize)
	}
	if stride < 1 {
		return nil, fmt.Errorf("stride must be at least 1, got %d", stride)
	}

	var windows []Window
	for start := 0; start < totalItems; start += stride {
		end := start + windowSize - 1
		if end > totalItems-1 {
			end = totalItems - 1
		}
		windows = append(windows, Window{Start: start, End: end})
	}
	return windows, nil
}
