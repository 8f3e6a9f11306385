package imgmeta

import "fmt"

// ReduceAspectRatio expresses width:height in lowest terms. Both inputs
// must be positive; a zero on either side is rejected rather than fed into
// the divisor computation.
func ReduceAspectRatio(width, height uint32) (AspectRatio, error) {
	if width == 0 || height == 0 {
		return AspectRatio{}, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	g := gcd(width, height)
	return AspectRatio{Width: width / g, Height: height / g}, nil
}

func gcd(a, b uint32) uint32 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
