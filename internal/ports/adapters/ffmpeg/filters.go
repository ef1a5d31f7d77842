package ffmpeg

import (
	"errors"
	"fmt"
	"strings"

	"github.com/forPelevin/hlshorts/internal/ports"
	"github.com/forPelevin/hlshorts/internal/types"
)

// filterGraph builds the -filter_complex graph for a render request. The
// graph always ends in the [outv] label.
func filterGraph(req ports.RenderRequest) (string, error) {
	tw, th := req.Plan.TargetWidth, req.Plan.TargetHeight
	if tw <= 0 || th <= 0 {
		return "", fmt.Errorf("render: invalid target %dx%d", tw, th)
	}

	var base string
	switch req.Layout {
	case types.LayoutCrop, "":
		base = cropFilter(req.Plan)
	case types.LayoutBlur:
		base = fmt.Sprintf(
			"[0:v]split=2[bg][fg];"+
				"[bg]scale=%[1]d:%[2]d:force_original_aspect_ratio=increase,crop=%[1]d:%[2]d,boxblur=20:10[bgb];"+
				"[fg]scale=%[1]d:%[2]d:force_original_aspect_ratio=decrease[fgs];"+
				"[bgb][fgs]overlay=(W-w)/2:(H-h)/2,setsar=1[base]",
			tw, th)
	case types.LayoutPad:
		base = fmt.Sprintf(
			"[0:v]scale=%[1]d:%[2]d:force_original_aspect_ratio=decrease,pad=%[1]d:%[2]d:(ow-iw)/2:(oh-ih)/2,setsar=1[base]",
			tw, th)
	default:
		return "", errors.New("render: unsupported layout " + string(req.Layout))
	}

	if req.BurnASS == "" {
		return base + ";[base]null[outv]", nil
	}
	var b strings.Builder
	b.WriteString(base)
	b.WriteString(";[base]ass=filename=")
	b.WriteString(escapeFilterPath(req.BurnASS))
	if req.FontsDir != "" {
		b.WriteString(":fontsdir=")
		b.WriteString(escapeFilterPath(req.FontsDir))
	}
	b.WriteString("[outv]")
	return b.String(), nil
}

// cropFilter scales to the planned size and cuts the target window. Plans
// without scaled dimensions fall back to ffmpeg's own centered cover crop.
func cropFilter(p types.CropPlan) string {
	if p.ScaledWidth < p.TargetWidth || p.ScaledHeight < p.TargetHeight {
		return fmt.Sprintf(
			"[0:v]scale=%[1]d:%[2]d:force_original_aspect_ratio=increase,crop=%[1]d:%[2]d,setsar=1[base]",
			p.TargetWidth, p.TargetHeight)
	}
	return fmt.Sprintf("[0:v]scale=%d:%d,crop=%d:%d:%d:%d,setsar=1[base]",
		p.ScaledWidth, p.ScaledHeight, p.TargetWidth, p.TargetHeight, p.OffsetX, p.OffsetY)
}
