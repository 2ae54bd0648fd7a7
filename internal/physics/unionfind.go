package physics

import "github.com/mwindels/steadyum-go/internal/ids"

// unionFind is a standard disjoint-set structure over body UUIDs, used to
// group bodies into connected components from a set of contact and joint
// pairs (spec.md §4.4 step 6).
type unionFind struct {
	parent map[ids.BodyUUID]ids.BodyUUID
	order  []ids.BodyUUID
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[ids.BodyUUID]ids.BodyUUID)}
}

func (u *unionFind) add(x ids.BodyUUID) {
	if _, ok := u.parent[x]; !ok {
		u.parent[x] = x
		u.order = append(u.order, x)
	}
}

func (u *unionFind) find(x ids.BodyUUID) ids.BodyUUID {
	root := x
	for u.parent[root] != root {
		root = u.parent[root]
	}
	for u.parent[x] != root {
		u.parent[x], x = root, u.parent[x]
	}
	return root
}

func (u *unionFind) union(a, b ids.BodyUUID) {
	u.add(a)
	u.add(b)
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[ra] = rb
	}
}

// groups returns the current partition, each group in first-added order.
func (u *unionFind) groups() [][]ids.BodyUUID {
	byRoot := make(map[ids.BodyUUID][]ids.BodyUUID)
	var roots []ids.BodyUUID
	for _, x := range u.order {
		r := u.find(x)
		if _, ok := byRoot[r]; !ok {
			roots = append(roots, r)
		}
		byRoot[r] = append(byRoot[r], x)
	}
	out := make([][]ids.BodyUUID, 0, len(roots))
	for _, r := range roots {
		out = append(out, byRoot[r])
	}
	return out
}
