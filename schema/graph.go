package schema

import "github.com/syssam/rowset"

// Sort orders models so that every model follows the models it references
// through foreign keys. Keys to models outside the given set and self
// references are ignored. Independent models keep their input order.
// A cycle between distinct models is reported as a CyclicDependencyError.
func Sort(models []*Model) ([]*Model, error) {
	var (
		in     = make(map[int]bool, len(models))
		placed = make(map[int]bool, len(models))
		sorted = make([]*Model, 0, len(models))
	)
	for _, m := range models {
		in[m.id] = true
	}
	ready := func(m *Model) bool {
		for _, dep := range dependencies(m, in) {
			if !placed[dep.id] {
				return false
			}
		}
		return true
	}
	for len(sorted) < len(models) {
		progress := false
		for _, m := range models {
			if placed[m.id] || !ready(m) {
				continue
			}
			placed[m.id] = true
			sorted = append(sorted, m)
			progress = true
			break
		}
		if !progress {
			return nil, &rowset.CyclicDependencyError{Models: cycle(models, in, placed)}
		}
	}
	return sorted, nil
}

// dependencies returns the distinct models referenced by m within the set.
func dependencies(m *Model, in map[int]bool) []*Model {
	var (
		deps []*Model
		seen = make(map[int]bool)
	)
	for _, fk := range m.foreignKeys {
		if fk.SelfReferencing() || !in[fk.ref.id] || seen[fk.ref.id] {
			continue
		}
		seen[fk.ref.id] = true
		deps = append(deps, fk.ref)
	}
	return deps
}

// cycle walks unplaced dependencies from the first unplaced model until a
// model repeats. Every unplaced model has an unplaced dependency, so the walk
// always ends on a cycle.
func cycle(models []*Model, in, placed map[int]bool) []string {
	var start *Model
	for _, m := range models {
		if !placed[m.id] {
			start = m
			break
		}
	}
	var (
		path []*Model
		at   = make(map[int]int)
	)
	for m := start; m != nil; {
		if i, ok := at[m.id]; ok {
			names := make([]string, 0, len(path)-i+1)
			for _, p := range path[i:] {
				names = append(names, p.name)
			}
			return append(names, m.name)
		}
		at[m.id] = len(path)
		path = append(path, m)
		var next *Model
		for _, dep := range dependencies(m, in) {
			if !placed[dep.id] {
				next = dep
				break
			}
		}
		m = next
	}
	return nil
}
