// Package crop positions a fixed-size output window over a rescaled source
// frame.
package crop

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/forPelevin/hlshorts/internal/types"
)

// DefaultSkipMargin is the widest scaled-width excess (pixels) for which
// subject analysis is skipped and the crop is simply centered.
const DefaultSkipMargin = 10

var (
	ErrDegenerate = errors.New("degenerate crop geometry")
	errNoTrace    = errors.New("empty subject trace")
)

// Geometry describes how a source frame is scaled so that it covers the
// target in both dimensions.
type Geometry struct {
	SourceWidth  int
	SourceHeight int
	TargetWidth  int
	TargetHeight int
	Scale        float64
	ScaledWidth  int
	ScaledHeight int
}

func NewGeometry(srcW, srcH, targetW, targetH int) (Geometry, error) {
	if srcW <= 0 || srcH <= 0 || targetW <= 0 || targetH <= 0 {
		return Geometry{}, fmt.Errorf("%w: source %dx%d, target %dx%d", ErrDegenerate, srcW, srcH, targetW, targetH)
	}
	scale := math.Max(float64(targetW)/float64(srcW), float64(targetH)/float64(srcH))
	g := Geometry{
		SourceWidth:  srcW,
		SourceHeight: srcH,
		TargetWidth:  targetW,
		TargetHeight: targetH,
		Scale:        scale,
		ScaledWidth:  max(ceilEven(float64(srcW)*scale), targetW),
		ScaledHeight: max(ceilEven(float64(srcH)*scale), targetH),
	}
	return g, nil
}

// WindowWidth is the crop width expressed in source pixels.
func (g Geometry) WindowWidth() float64 {
	if g.Scale <= 0 {
		return float64(g.SourceWidth)
	}
	return float64(g.TargetWidth) / g.Scale
}

func (g Geometry) centeredX() int { return (g.ScaledWidth - g.TargetWidth) / 2 }
func (g Geometry) centeredY() int { return (g.ScaledHeight - g.TargetHeight) / 2 }

// Planner turns a subject trace into a crop offset for one target size.
type Planner struct {
	TargetWidth  int
	TargetHeight int
	SkipMargin   int
}

func NewPlanner(targetW, targetH, skipMargin int) Planner {
	if skipMargin < 0 {
		skipMargin = DefaultSkipMargin
	}
	return Planner{TargetWidth: targetW, TargetHeight: targetH, SkipMargin: skipMargin}
}

// Plan positions the window so that the median subject center (source
// pixels) sits in the middle of it. It never fails: any problem produces a
// centered plan marked OutcomeFallback.
func (p Planner) Plan(srcW, srcH int, centers []float64) types.CropPlan {
	g, err := NewGeometry(srcW, srcH, p.TargetWidth, p.TargetHeight)
	if err != nil {
		return types.CropPlan{
			TargetWidth:  p.TargetWidth,
			TargetHeight: p.TargetHeight,
			ScaledWidth:  p.TargetWidth,
			ScaledHeight: p.TargetHeight,
			Outcome:      types.OutcomeFallback,
			Reason:       err,
		}
	}

	plan := types.CropPlan{
		OffsetX:      g.centeredX(),
		OffsetY:      g.centeredY(),
		TargetWidth:  g.TargetWidth,
		TargetHeight: g.TargetHeight,
		ScaledWidth:  g.ScaledWidth,
		ScaledHeight: g.ScaledHeight,
		Outcome:      types.OutcomeOK,
	}
	if g.ScaledWidth-g.TargetWidth <= p.SkipMargin {
		return plan
	}
	if len(centers) == 0 {
		plan.Outcome = types.OutcomeFallback
		plan.Reason = errNoTrace
		return plan
	}

	m := median(centers)
	x := m*g.Scale - float64(g.TargetWidth)/2
	if math.IsNaN(x) || math.IsInf(x, 0) {
		plan.Outcome = types.OutcomeFallback
		plan.Reason = fmt.Errorf("%w: subject center %v", ErrDegenerate, m)
		return plan
	}
	plan.OffsetX = clampInt(int(math.Round(x)), 0, g.ScaledWidth-g.TargetWidth)
	return plan
}

func median(xs []float64) float64 {
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

// ceilEven rounds up to the next even integer. Encoders reject odd
// dimensions for 4:2:0 output.
func ceilEven(x float64) int {
	n := int(math.Ceil(x - 1e-6))
	if n%2 != 0 {
		n++
	}
	return n
}

func clampInt(x, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
