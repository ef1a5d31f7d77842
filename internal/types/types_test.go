package types

import (
	"math"
	"testing"
)

func TestRelBoxCenterX(t *testing.T) {
	box := RelBox{XMin: 0.25, Width: 0.1}
	if got := box.CenterX(1000); math.Abs(got-300) > 1e-9 {
		t.Fatalf("CenterX(1000) = %v, want 300", got)
	}
	if got := box.CenterX(1); math.Abs(got-0.3) > 1e-9 {
		t.Fatalf("CenterX(1) = %v, want 0.3", got)
	}
}
