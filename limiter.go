package mosaic

// sanitizeK ensures k is within valid bounds [1, maxResults].
//
// If k is <= 0 or exceeds maxResults, it returns maxResults: a search
// never pads with placeholders, so asking for more results than exist
// simply returns everything.
func sanitizeK(k, maxResults int) int {
	if k <= 0 || k > maxResults {
		return maxResults
	}
	return k
}

// limitResults applies k-limiting to a result slice.
func limitResults(results []HistogramResult, k int) []HistogramResult {
	k = sanitizeK(k, len(results))
	return results[:k]
}
