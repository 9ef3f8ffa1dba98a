package causal

import "slices"

// DSeparated reports whether every variable in xs is d-separated from every
// variable in ys given zs.
func (g *Graph) DSeparated(xs, ys, zs []string) (bool, error) {
	for _, list := range [][]string{xs, ys, zs} {
		if err := g.requireAll(list); err != nil {
			return false, err
		}
	}
	return g.dSeparated(toSet(xs), toSet(ys), toSet(zs)), nil
}

type direction uint8

const (
	// up: the trail arrived from a child (travelling against the edge).
	up direction = iota
	// down: the trail arrived from a parent (travelling along the edge).
	down
)

type visit struct {
	node string
	dir  direction
}

// dSeparated runs the reachability ("Bayes-ball") procedure: it collects every
// variable reachable from xs by an active trail given zs and checks that none
// of them is in ys.
func (g *Graph) dSeparated(xs, ys, zs map[string]bool) bool {
	for y := range ys {
		if xs[y] {
			return false
		}
	}

	// A collider is open when it or one of its descendants is observed,
	// i.e. when it is an ancestor of (or in) zs.
	observedAnc := g.ancestorsOf(keys(zs))

	queue := make([]visit, 0, len(xs))
	for x := range xs {
		queue = append(queue, visit{x, up})
	}
	visited := make(map[visit]bool)

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur] {
			continue
		}
		visited[cur] = true

		if !zs[cur.node] && ys[cur.node] {
			return false
		}

		switch cur.dir {
		case up:
			if zs[cur.node] {
				continue
			}
			for _, p := range g.parents[cur.node] {
				queue = append(queue, visit{p, up})
			}
			for _, c := range g.children[cur.node] {
				queue = append(queue, visit{c, down})
			}
		case down:
			if !zs[cur.node] {
				for _, c := range g.children[cur.node] {
					queue = append(queue, visit{c, down})
				}
			}
			if observedAnc[cur.node] {
				for _, p := range g.parents[cur.node] {
					queue = append(queue, visit{p, up})
				}
			}
		}
	}
	return true
}

// backdoorPaths enumerates simple undirected paths from treatment to outcome
// whose first edge points into treatment. Paths are discovered depth-first,
// visiting parents before children in insertion order, and capped at limit
// paths or budget visited nodes, whichever comes first.
func (g *Graph) backdoorPaths(treatment, outcome string, limit, budget int) [][]string {
	var paths [][]string
	steps := 0
	onPath := map[string]bool{treatment: true}
	path := []string{treatment}

	var walk func(n string)
	walk = func(n string) {
		steps++
		if len(paths) >= limit || steps > budget {
			return
		}
		if n == outcome {
			paths = append(paths, slices.Clone(path))
			return
		}
		for _, next := range g.neighbours(n) {
			if onPath[next] {
				continue
			}
			onPath[next] = true
			path = append(path, next)
			walk(next)
			path = path[:len(path)-1]
			onPath[next] = false
		}
	}

	for _, p := range g.parents[treatment] {
		if len(paths) >= limit {
			break
		}
		onPath[p] = true
		path = append(path, p)
		walk(p)
		path = path[:len(path)-1]
		onPath[p] = false
	}
	return paths
}

// pathBlocked reports whether the undirected path is blocked given zs. anc
// must be ancestorsOf(zs).
func (g *Graph) pathBlocked(path []string, zs, anc map[string]bool) bool {
	for i := 1; i < len(path)-1; i++ {
		prev, m, next := path[i-1], path[i], path[i+1]
		if g.isCollider(prev, m, next) {
			if !anc[m] {
				return true
			}
			continue
		}
		if zs[m] {
			return true
		}
	}
	return false
}

func (g *Graph) openPaths(paths [][]string, zs map[string]bool) [][]string {
	anc := g.ancestorsOf(keys(zs))
	var open [][]string
	for _, p := range paths {
		if !g.pathBlocked(p, zs, anc) {
			open = append(open, p)
		}
	}
	return open
}

func (g *Graph) isCollider(a, m, b string) bool {
	_, in1 := g.edges[edgeKey{a, m}]
	_, in2 := g.edges[edgeKey{b, m}]
	return in1 && in2
}

func (g *Graph) neighbours(n string) []string {
	out := make([]string, 0, len(g.parents[n])+len(g.children[n]))
	out = append(out, g.parents[n]...)
	return append(out, g.children[n]...)
}

func toSet(ids []string) map[string]bool {
	s := make(map[string]bool, len(ids))
	for _, id := range ids {
		s[id] = true
	}
	return s
}

func keys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k, ok := range set {
		if ok {
			out = append(out, k)
		}
	}
	return out
}
