package planner

import (
	"slices"
	"testing"
)

func TestPlan_Quick(t *testing.T) {
	got := Plan("AI writing assistant", Quick)
	want := []string{"AI writing assistant 竞品", "AI writing assistant 对比", "AI writing assistant 有哪些"}
	if !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestPlan_DepthIsPrefixSuperset(t *testing.T) {
	topic := "笔记软件"
	quick := Plan(topic, Quick)
	standard := Plan(topic, Standard)
	deep := Plan(topic, Deep)

	if len(quick) != 3 || len(standard) != 6 || len(deep) != 9 {
		t.Fatalf("unexpected sizes: %d/%d/%d", len(quick), len(standard), len(deep))
	}
	if !slices.Equal(standard[:len(quick)], quick) {
		t.Errorf("standard must extend quick without reordering: %v", standard)
	}
	if !slices.Equal(deep[:len(standard)], standard) {
		t.Errorf("deep must extend standard without reordering: %v", deep)
	}
}

func TestPlan_Deterministic(t *testing.T) {
	if !slices.Equal(Plan("x", Deep), Plan("x", Deep)) {
		t.Error("plan must be deterministic")
	}
}

func TestPlan_ClampsDepth(t *testing.T) {
	if got := Plan("x", Depth(7)); len(got) != 9 {
		t.Errorf("expected deep plan for out-of-range depth, got %d queries", len(got))
	}
}

func TestParseDepth(t *testing.T) {
	tests := []struct {
		in      string
		want    Depth
		wantErr bool
	}{
		{"quick", Quick, false},
		{"Standard", Standard, false},
		{" DEEP ", Deep, false},
		{"", Standard, false},
		{"exhaustive", Standard, true},
	}
	for _, tt := range tests {
		got, err := ParseDepth(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDepth(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseDepth(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if Quick.String() != "quick" || Deep.String() != "deep" {
		t.Error("unexpected depth names")
	}
}
