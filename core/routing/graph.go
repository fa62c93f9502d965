package routing

import (
	"math"
	"sort"
)

// adjacency is an undirected cost graph keyed by node id.
type adjacency map[string]map[string]int

// addEdge records an undirected edge (a, b) with the given cost, keeping the
// minimum cost when an edge is contributed from more than one source (spec
// §4.4 calculate_routes: "taking the minimum cost when both sources
// contribute an edge").
func (g adjacency) addEdge(a, b string, cost int) {
	g.ensure(a)
	g.ensure(b)
	if cur, ok := g[a][b]; !ok || cost < cur {
		g[a][b] = cost
	}
	if cur, ok := g[b][a]; !ok || cost < cur {
		g[b][a] = cost
	}
}

func (g adjacency) ensure(id string) {
	if _, ok := g[id]; !ok {
		g[id] = map[string]int{}
	}
}

const infinity = math.MaxInt

// shortestPaths runs Dijkstra from src over adj with the deterministic
// tie-break and in-relaxation first-hop carrying required by spec §4.4.
//
// Returns dist (infinity for unreachable vertices) and first (the first-hop
// neighbor toward each vertex, "" if none — including src itself).
func shortestPaths(adj adjacency, src string, liveNeighbors map[string]bool) (dist map[string]int, first map[string]string) {
	dist = make(map[string]int, len(adj))
	first = make(map[string]string, len(adj))
	unvisited := make(map[string]struct{}, len(adj))
	for v := range adj {
		dist[v] = infinity
		unvisited[v] = struct{}{}
	}
	if _, ok := dist[src]; !ok {
		return dist, first
	}
	dist[src] = 0

	for len(unvisited) > 0 {
		u, ok := pickMin(dist, unvisited)
		if !ok || dist[u] == infinity {
			break
		}
		delete(unvisited, u)

		neighbors := make([]string, 0, len(adj[u]))
		for v := range adj[u] {
			neighbors = append(neighbors, v)
		}
		sort.Strings(neighbors)

		for _, v := range neighbors {
			alt := dist[u] + adj[u][v]

			var candFirst string
			if u == src {
				candFirst = v
			} else {
				candFirst = first[u]
			}

			if alt < dist[v] {
				dist[v] = alt
				first[v] = candFirst
			} else if alt == dist[v] && preferFirstHop(candFirst, first[v], liveNeighbors) {
				first[v] = candFirst
			}
		}
	}
	return dist, first
}

// pickMin selects u = argmin over unvisited keyed by (dist[u], u)
// lexicographically, per spec §4.4.
func pickMin(dist map[string]int, unvisited map[string]struct{}) (string, bool) {
	best := ""
	bestDist := infinity
	found := false
	for u := range unvisited {
		d := dist[u]
		if !found || d < bestDist || (d == bestDist && u < best) {
			best, bestDist, found = u, d, true
		}
	}
	return best, found
}

// preferFirstHop is the tie-break rule of spec §4.4: prefer a live direct
// neighbor over a non-neighbor first hop, then fall back to lexicographic
// order. It is a strict total order on distinct live-neighbor candidates,
// as required by spec §8.
func preferFirstHop(cand, cur string, liveNeighbors map[string]bool) bool {
	if cur == "" {
		return true
	}
	if cand == "" {
		return false
	}
	candLive := liveNeighbors[cand]
	curLive := liveNeighbors[cur]
	if candLive && !curLive {
		return true
	}
	if curLive && !candLive {
		return false
	}
	return cand < cur
}
