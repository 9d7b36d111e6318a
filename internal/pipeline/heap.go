package pipeline

import "github.com/convtrail/convtrail/internal/model"

// heapItem pairs a completed record with its insertion sequence so equal
// timestamps keep fetch arrival order.
type heapItem struct {
	rec model.InvocationRecord
	seq int
}

// recordHeap is a min-heap of completed records ordered by timestamp.
type recordHeap []heapItem

func (h recordHeap) Len() int { return len(h) }

func (h recordHeap) Less(i, j int) bool {
	if h[i].rec.Timestamp.Equal(h[j].rec.Timestamp) {
		return h[i].seq < h[j].seq
	}
	return h[i].rec.Timestamp.Before(h[j].rec.Timestamp)
}

func (h recordHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *recordHeap) Push(x any) {
	*h = append(*h, x.(heapItem))
}

func (h *recordHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
