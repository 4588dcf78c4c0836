package render

import (
	"regexp"
	"sort"
	"strconv"
)

var rePageNumber = regexp.MustCompile(`(\d+)`)

// SortPageFiles orders page image filenames by their embedded page number,
// numerically: page2.png sorts before page10.png. A lexical sort would put
// page10 between page1 and page2 and corrupt multi-digit page ordering.
// Names without a number sort after numbered ones, lexically among
// themselves.
func SortPageFiles(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		ni, oki := pageNumber(names[i])
		nj, okj := pageNumber(names[j])
		switch {
		case oki && okj:
			if ni != nj {
				return ni < nj
			}
			return names[i] < names[j]
		case oki:
			return true
		case okj:
			return false
		default:
			return names[i] < names[j]
		}
	})
}

func pageNumber(name string) (int, bool) {
	m := rePageNumber.FindString(name)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}
