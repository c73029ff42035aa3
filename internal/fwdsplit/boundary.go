package fwdsplit

// BoundaryKind tells how a boundary was detected.
type BoundaryKind int

const (
	BoundaryMarker   BoundaryKind = iota // explicit marker phrase
	BoundaryCluster                      // run of at least two distinct header lines
	BoundaryFallback                     // lone From line, used only when nothing else matched
)

func (k BoundaryKind) String() string {
	switch k {
	case BoundaryMarker:
		return "marker"
	case BoundaryCluster:
		return "cluster"
	case BoundaryFallback:
		return "fallback"
	}
	return "unknown"
}

// Boundary is the first line of a nested message.
type Boundary struct {
	Index int
	Kind  BoundaryKind
}

// FindBoundary returns the first line that starts a nested message. Lines are scanned
// top-down and the first marker line or header cluster wins. A single header line never
// starts a message, except a From line when the fallback is enabled and no marker or
// cluster exists at all.
func (r *Rules) FindBoundary(lines []string) (Boundary, bool) {
	classes := make([]LineClass, len(lines))
	for i, line := range lines {
		classes[i] = r.Classify(line)
	}

	for i, line := range lines {
		if !classes[i].IsHeader && r.IsMarker(line) {
			return Boundary{Index: i, Kind: BoundaryMarker}, true
		}
		if clusterStart(classes, i) {
			return Boundary{Index: i, Kind: BoundaryCluster}, true
		}
	}

	if r.fallbackFrom {
		for i, c := range classes {
			if c.IsHeader && c.Field == From {
				return Boundary{Index: i, Kind: BoundaryFallback}, true
			}
		}
	}
	return Boundary{}, false
}

// clusterStart reports whether classes[i] begins a run of at least two consecutive
// header lines without a repeated field.
func clusterStart(classes []LineClass, i int) bool {
	if i+1 >= len(classes) {
		return false
	}
	a, b := classes[i], classes[i+1]
	return a.IsHeader && b.IsHeader && a.Field != b.Field
}
