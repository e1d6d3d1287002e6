package batch

import "fmt"

// DefaultMaxBatchSize is the number of texts sent per provider call.
const DefaultMaxBatchSize = 10

// LangPair identifies a (source, target) language combination.
type LangPair struct {
	Source string
	Target string
}

// String formats the pair as "source->target".
func (p LangPair) String() string {
	return p.Source + "->" + p.Target
}

// Group is every request sharing one language pair, in discovery order.
type Group struct {
	Pair     LangPair
	Requests []Request
}

// Batch is a contiguous slice of a Group sent in one provider call.
//
// Indices holds the position of each request in the flat request list the
// plan was built from; results are correlated through it, not through text.
type Batch struct {
	Pair     LangPair
	Requests []Request
	Indices  []int
}

// Texts returns the batch's source texts in order.
func (b Batch) Texts() []string {
	out := make([]string, len(b.Requests))
	for i, r := range b.Requests {
		out[i] = r.Text
	}
	return out
}

// Len returns the number of requests in the batch.
func (b Batch) Len() int {
	return len(b.Requests)
}

// GroupByPair groups requests by language pair. Groups are ordered by the
// first appearance of their pair and requests keep their relative order.
func GroupByPair(reqs []Request) []Group {
	index := make(map[LangPair]int)
	var groups []Group
	for _, r := range reqs {
		p := r.Pair()
		i, ok := index[p]
		if !ok {
			i = len(groups)
			index[p] = i
			groups = append(groups, Group{Pair: p})
		}
		groups[i].Requests = append(groups[i].Requests, r)
	}
	return groups
}

// Split cuts a slice of n items into consecutive [start, end) ranges of at
// most size items.
func Split(n, size int) [][2]int {
	if n == 0 {
		return nil
	}
	if size <= 0 || size >= n {
		return [][2]int{{0, n}}
	}
	ranges := make([][2]int, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		ranges = append(ranges, [2]int{start, end})
	}
	return ranges
}

// Plan groups requests by pair and splits each group into batches of at most
// maxSize requests. Every request appears in exactly one batch.
func Plan(reqs []Request, maxSize int) ([]Batch, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("max batch size must be positive (got %d)", maxSize)
	}

	// Track each request's flat index while grouping.
	positions := make(map[LangPair][]int)
	for i, r := range reqs {
		positions[r.Pair()] = append(positions[r.Pair()], i)
	}

	var batches []Batch
	for _, g := range GroupByPair(reqs) {
		idx := positions[g.Pair]
		for _, rg := range Split(len(g.Requests), maxSize) {
			batches = append(batches, Batch{
				Pair:     g.Pair,
				Requests: g.Requests[rg[0]:rg[1]],
				Indices:  idx[rg[0]:rg[1]],
			})
		}
	}
	return batches, nil
}
