package sysloop

import (
	"container/heap"
	"time"

	"github.com/nabbar/opcua-core/eventloop"
)

// scheduled is one entry in the loop's timer heap: either a one-shot timed
// callback or a cyclic one, distinguished by interval == 0.
type scheduled struct {
	id       eventloop.CallbackID
	deadline time.Time
	interval time.Duration
	policy   eventloop.MissPolicy
	fn       eventloop.TimedCallbackFunc
	index    int
}

func (s *scheduled) cyclic() bool { return s.interval > 0 }

// timerHeap is a container/heap.Interface over *scheduled ordered by
// deadline, the same shape joeycumines/go-eventloop's own scheduler uses
// for its ready queue (idiom only; never imported, see DESIGN.md).
type timerHeap []*scheduled

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	s := x.(*scheduled)
	s.index = len(*h)
	*h = append(*h, s)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	s := old[n-1]
	old[n-1] = nil
	s.index = -1
	*h = old[:n-1]
	return s
}

var _ heap.Interface = (*timerHeap)(nil)
