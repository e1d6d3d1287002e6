package batch

// Dedup collapses requests with identical Text into the first occurrence,
// preserving order. It ignores language pairs, so it is only meaningful for
// whole-table requests where every request shares one pair.
func Dedup(reqs []Request) []Request {
	seen := make(map[string]struct{}, len(reqs))
	out := make([]Request, 0, len(reqs))
	for _, r := range reqs {
		if _, ok := seen[r.Text]; ok {
			continue
		}
		seen[r.Text] = struct{}{}
		out = append(out, r)
	}
	return out
}
