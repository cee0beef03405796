package memstore

// MaxPriceHeap keeps the highest price at the root; used for the bid
// side so the best (highest) price surfaces first.
type MaxPriceHeap []uint64

func (h MaxPriceHeap) Len() int            { return len(h) }
func (h MaxPriceHeap) Less(i, j int) bool  { return h[i] > h[j] }
func (h MaxPriceHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *MaxPriceHeap) Push(x interface{}) { *h = append(*h, x.(uint64)) }
func (h *MaxPriceHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// Peek returns the root price without popping it.
func (h MaxPriceHeap) Peek() (uint64, bool) {
	if len(h) == 0 {
		return 0, false
	}
	return h[0], true
}

// MinPriceHeap keeps the lowest price at the root; used for the ask
// side so the best (lowest) price surfaces first.
type MinPriceHeap []uint64

func (h MinPriceHeap) Len() int            { return len(h) }
func (h MinPriceHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h MinPriceHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *MinPriceHeap) Push(x interface{}) { *h = append(*h, x.(uint64)) }
func (h *MinPriceHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

func (h MinPriceHeap) Peek() (uint64, bool) {
	if len(h) == 0 {
		return 0, false
	}
	return h[0], true
}
