package controller

import "math/rand"

// ecmpPath enumerates every shortest (hop-count) path from s to d over the
// current topology snapshot and returns one chosen uniformly at random.
// Returns ErrNoPath if d is unreachable from s.
func (t *topo) ecmpPath(rng *rand.Rand, s, d string) ([]string, error) {
	if s == d {
		return []string{s}, nil
	}

	res, err := t.bfsFrom(s)
	if err != nil {
		return nil, err
	}
	if _, reached := res.Depth[d]; !reached {
		return nil, ErrNoPath
	}

	paths := t.allShortestPaths(res.Depth, s, d)
	if len(paths) == 0 {
		return nil, ErrNoPath
	}
	return paths[rng.Intn(len(paths))], nil
}

// allShortestPaths walks backward from d, at each vertex v collecting every
// predecessor u with an edge u->v and depth[u] == depth[v]-1, then expands
// all such chains into full s..d paths. This enumerates the full
// equal-cost path set rather than reconstructing a single BFS tree path.
func (t *topo) allShortestPaths(depth map[string]int, s, d string) [][]string {
	var walk func(v string) [][]string
	walk = func(v string) [][]string {
		if v == s {
			return [][]string{{s}}
		}
		var preds []string
		for _, e := range t.g.Edges() {
			if e.To != v {
				continue
			}
			u := e.From
			if du, ok := depth[u]; ok && du == depth[v]-1 {
				preds = append(preds, u)
			}
		}

		var out [][]string
		for _, u := range preds {
			for _, prefix := range walk(u) {
				path := append(append([]string{}, prefix...), v)
				out = append(out, path)
			}
		}
		return out
	}
	return walk(d)
}

// vlbPath composes Valiant Load Balancing with ECMP: a uniformly random
// intermediate switch, then an ECMP leg to it and an ECMP leg from it,
// joined with the duplicate intermediate hop removed. Falls back to a
// direct ecmpPath if there are no intermediates or either leg fails.
func (t *topo) vlbPath(rng *rand.Rand, s, d string) ([]string, error) {
	inters := t.dpidsWithRole(RoleIntermediate)
	if len(inters) == 0 {
		return t.ecmpPath(rng, s, d)
	}

	i := switchVertexID(inters[rng.Intn(len(inters))])
	leg1, err := t.ecmpPath(rng, s, i)
	if err != nil {
		return t.ecmpPath(rng, s, d)
	}
	leg2, err := t.ecmpPath(rng, i, d)
	if err != nil {
		return t.ecmpPath(rng, s, d)
	}

	path := append(append([]string{}, leg1...), leg2[1:]...)
	return path, nil
}
