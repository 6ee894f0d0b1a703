package control

import (
	"math"

	"pwmfan/util"
)

// QuarticEase maps x from [lo1, hi1] onto [lo2, hi2] along the
// ease-in-out-quartic curve (https://easings.net/#easeInOutQuart). Values
// outside the domain map to the nearest end of the range.
func QuarticEase(x, lo1, hi1 float64, lo2, hi2 int) int {
	if hi1 <= lo1 {
		return hi2
	}

	x = util.Clamp(x, lo1, hi1)
	t := (x - lo1) / (hi1 - lo1)

	var u float64
	if t < 0.5 {
		u = 8 * math.Pow(t, 4)
	} else {
		u = 1 - math.Pow(-2*t+2, 4)/2
	}

	v := int(math.Round(u*float64(hi2-lo2) + float64(lo2)))
	return util.Clamp(v, lo2, hi2)
}
