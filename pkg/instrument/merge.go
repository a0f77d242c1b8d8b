package instrument

import "container/heap"

// Merge combines per-file record sequences of one instrument into a single
// chronological sequence. Each input is expected in time order, as a log
// file is. Records with equal epochs keep their input order.
func Merge(seqs ...[]Record) []Record {
	total := 0
	h := make(cursorHeap, 0, len(seqs))
	for i, seq := range seqs {
		total += len(seq)
		if len(seq) > 0 {
			h = append(h, &cursor{seq: i, recs: seq})
		}
	}
	heap.Init(&h)

	out := make([]Record, 0, total)
	for h.Len() > 0 {
		c := h[0]
		out = append(out, c.recs[c.pos])
		c.pos++
		if c.pos == len(c.recs) {
			heap.Pop(&h)
			continue
		}
		heap.Fix(&h, 0)
	}
	return out
}

type cursor struct {
	seq  int
	pos  int
	recs []Record
}

func (c *cursor) epoch() float64 { return c.recs[c.pos].Head().Epoch }

type cursorHeap []*cursor

func (h cursorHeap) Len() int { return len(h) }

func (h cursorHeap) Less(i, j int) bool {
	ei, ej := h[i].epoch(), h[j].epoch()
	if ei != ej {
		return ei < ej
	}
	return h[i].seq < h[j].seq
}

func (h cursorHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *cursorHeap) Push(x any) { *h = append(*h, x.(*cursor)) }

func (h *cursorHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]
	return c
}
