package routing

// Dominates reports whether a is no worse than b in every objective and
// strictly better in at least one. Identical vectors dominate neither way.
func Dominates(a, b Objectives) bool {
	av, bv := a.Vector(), b.Vector()
	strictly := false
	for i := range av {
		if av[i] > bv[i] {
			return false
		}
		if av[i] < bv[i] {
			strictly = true
		}
	}
	return strictly
}

// ParetoFront returns the indices of the vectors that no other vector
// dominates, in input order.
func ParetoFront(objs []Objectives) []int {
	front := make([]int, 0, len(objs))
	for i := range objs {
		dominated := false
		for j := range objs {
			if i != j && Dominates(objs[j], objs[i]) {
				dominated = true
				break
			}
		}
		if !dominated {
			front = append(front, i)
		}
	}
	return front
}
