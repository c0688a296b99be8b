package broadcast

import "unicode/utf8"

// CostPerSegment is the flat carrier rate per SMS segment in USD.
const CostPerSegment = 0.0083

const segmentSize = 160

// SegmentCount returns how many SMS segments the draft occupies. An empty
// draft still bills as one segment.
func SegmentCount(draft string) int {
	n := utf8.RuneCountInString(draft)
	if n == 0 {
		return 1
	}
	return (n + segmentSize - 1) / segmentSize
}

// EstimateCost prices a send of the draft to an audience of the given size.
func EstimateCost(draft string, audienceSize int) float64 {
	return float64(SegmentCount(draft)) * float64(audienceSize) * CostPerSegment
}
