package vectorstore

import "sort"

// rrfK is the reciprocal-rank fusion constant.
const rrfK = 60

type rankedList struct {
	points []ScoredPoint
	weight float64
}

// fuseRRF merges ranked lists with weighted reciprocal-rank fusion:
// score(id) = Σ weight_i / (k + rank_i). Payloads come from whichever list
// saw the id first. Ties break on id for determinism.
func fuseRRF(lists []rankedList, topK int) []Hit {
	type fused struct {
		hit   Hit
		score float64
	}
	byID := make(map[string]*fused)

	for _, list := range lists {
		for rank, p := range list.points {
			f, ok := byID[p.ID]
			if !ok {
				f = &fused{hit: Hit{ID: p.ID, Payload: p.Payload}}
				byID[p.ID] = f
			}
			f.score += list.weight / float64(rrfK+rank+1)
			if len(f.hit.Payload) == 0 {
				f.hit.Payload = p.Payload
			}
		}
	}

	out := make([]Hit, 0, len(byID))
	for _, f := range byID {
		f.hit.Score = f.score
		out = append(out, f.hit)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}
