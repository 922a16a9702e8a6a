package reduce

// Ratio computes a Ratcliff/Obershelp sequence similarity in [0,1]:
// 2*M / (len(a)+len(b)), where M is the total size of matching blocks found
// by recursing on the longest common block. Operates on runes so accented
// text compares correctly.
func Ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1.0
	}
	m := matchTotal(ra, rb, 0, len(ra), 0, len(rb))
	return 2 * float64(m) / float64(total)
}

// RatioUpperBound is the cheap length-based ceiling on Ratio: even if the
// shorter string were fully contained in the longer, the ratio cannot exceed
// 2*min/(min+max). Used as the clustering prefilter so clearly mismatched
// pairs never reach the quadratic block search.
func RatioUpperBound(a, b string) float64 {
	la, lb := len([]rune(a)), len([]rune(b))
	if la+lb == 0 {
		return 1.0
	}
	shorter := la
	if lb < shorter {
		shorter = lb
	}
	return 2 * float64(shorter) / float64(la+lb)
}

func matchTotal(a, b []rune, alo, ahi, blo, bhi int) int {
	i, j, size := longestMatch(a, b, alo, ahi, blo, bhi)
	if size == 0 {
		return 0
	}
	return size +
		matchTotal(a, b, alo, i, blo, j) +
		matchTotal(a, b, i+size, ahi, j+size, bhi)
}

// longestMatch finds the longest block a[i:i+k] == b[j:j+k] within the given
// bounds, preferring the earliest block on ties.
func longestMatch(a, b []rune, alo, ahi, blo, bhi int) (int, int, int) {
	besti, bestj, bestsize := alo, blo, 0
	j2len := map[int]int{}
	for i := alo; i < ahi; i++ {
		next := map[int]int{}
		for j := blo; j < bhi; j++ {
			if a[i] != b[j] {
				continue
			}
			k := j2len[j-1] + 1
			next[j] = k
			if k > bestsize {
				besti, bestj, bestsize = i-k+1, j-k+1, k
			}
		}
		j2len = next
	}
	return besti, bestj, bestsize
}
