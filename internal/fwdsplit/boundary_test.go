package fwdsplit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindBoundary(t *testing.T) {
	r := MustRules(DefaultConfig())

	tests := []struct {
		name  string
		lines []string
		want  Boundary
		found bool
	}{
		{
			name:  "single stray header",
			lines: []string{"Hello", "Subject: only one line", "Bye"},
		},
		{
			name:  "signature with header-like line",
			lines: []string{"Regards,", "Ann", "To: the whole team", "", "Tel: 555"},
		},
		{
			name:  "repeated field is not a cluster",
			lines: []string{"Note", "To: a", "To: b"},
		},
		{
			name:  "cluster",
			lines: []string{"Hi", "", "From: A", "To: B", "Subject: X"},
			want:  Boundary{Index: 2, Kind: BoundaryCluster},
			found: true,
		},
		{
			name:  "marker",
			lines: []string{"Hi", "---------- Forwarded message ---------", "From: A", "To: B"},
			want:  Boundary{Index: 1, Kind: BoundaryMarker},
			found: true,
		},
		{
			name:  "cluster above marker",
			lines: []string{"From: A", "To: B", "", "-----Original Message-----", "From: C"},
			want:  Boundary{Index: 0, Kind: BoundaryCluster},
			found: true,
		},
		{
			name:  "header with marker phrase is a header",
			lines: []string{"Subject: Fwd: Original Message", "From: A", "", "body"},
			want:  Boundary{Index: 0, Kind: BoundaryCluster},
			found: true,
		},
		{
			name:  "lone from fallback",
			lines: []string{"Hi", "", "Van: Jan", "", "body"},
			want:  Boundary{Index: 2, Kind: BoundaryFallback},
			found: true,
		},
		{
			name:  "fallback loses to a later cluster",
			lines: []string{"From: A", "", "text", "Van: B", "Aan: C"},
			want:  Boundary{Index: 3, Kind: BoundaryCluster},
			found: true,
		},
		{
			name: "empty",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.FindBoundary(tt.lines)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFindBoundaryFallbackDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FallbackFrom = false
	r := MustRules(cfg)

	_, ok := r.FindBoundary([]string{"Hi", "From: A", "", "body"})
	assert.False(t, ok)
}

func TestBoundaryKindString(t *testing.T) {
	assert.Equal(t, "marker", BoundaryMarker.String())
	assert.Equal(t, "cluster", BoundaryCluster.String())
	assert.Equal(t, "fallback", BoundaryFallback.String())
	assert.Equal(t, "unknown", BoundaryKind(7).String())
}
