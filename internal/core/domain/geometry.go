package domain

// FitDimensions computes the output size for a source of srcW x srcH given the requested width
// and height (zero when absent). The aspect ratio is always preserved and the result never
// exceeds the source size.
//
// With both dimensions set, a source that is taller than the target box is constrained by
// width and its height floats; otherwise it is constrained by height.
func FitDimensions(srcW, srcH, width, height int) (int, int) {
	if srcW <= 0 || srcH <= 0 {
		return srcW, srcH
	}

	switch {
	case width <= 0 && height <= 0:
		return srcW, srcH
	case height <= 0:
		return byWidth(srcW, srcH, width)
	case width <= 0:
		return byHeight(srcW, srcH, height)
	case srcW*height < srcH*width:
		return byWidth(srcW, srcH, width)
	default:
		return byHeight(srcW, srcH, height)
	}
}

func byWidth(srcW, srcH, width int) (int, int) {
	w := min(width, srcW)
	return w, scale(srcH, w, srcW)
}

func byHeight(srcW, srcH, height int) (int, int) {
	h := min(height, srcH)
	return scale(srcW, h, srcH), h
}

// scale returns v*num/den rounded to the nearest integer, at least 1.
func scale(v, num, den int) int {
	return max((v*num+den/2)/den, 1)
}
