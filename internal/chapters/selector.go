package chapters

import (
	"strconv"
	"strings"
)

// Filter narrows the full chapter listing to the requested selection.
// chapter picks one chapter by number label (e.g. "28.5") or by
// 1-based index; rng is an index range "a-b"; list is a comma list of
// indices. An empty selection means everything.
func Filter(all []Chapter, chapter string, rng string, list string) []Chapter {
	if chapter != "" {
		byNumber := FilterByNumber(all, chapter)
		if len(byNumber) > 0 {
			return byNumber
		}
		if idx, err := atoi(chapter); err == nil {
			if idx > 0 && idx <= len(all) {
				return []Chapter{all[idx-1]}
			}
		}
		return []Chapter{}
	}
	if rng != "" {
		return FilterRange(all, rng)
	}
	if list != "" {
		return FilterList(all, list)
	}
	return all
}

func FilterByNumber(all []Chapter, number string) []Chapter {
	want, err := strconv.ParseFloat(strings.TrimSpace(number), 64)
	if err != nil {
		return nil
	}

	var out []Chapter
	for _, ch := range all {
		if ch.Number == want {
			out = append(out, ch)
		}
	}
	return out
}

func FilterRange(all []Chapter, rng string) []Chapter {
	parts := strings.Split(rng, "-")
	if len(parts) != 2 {
		return nil
	}
	start, err1 := atoi(parts[0])
	end, err2 := atoi(parts[1])
	if err1 != nil || err2 != nil {
		return nil
	}
	if start <= 0 || end <= 0 || start > end || end > len(all) {
		return nil
	}
	return all[start-1 : end]
}

func FilterList(all []Chapter, list string) []Chapter {
	nums := strings.Split(list, ",")
	out := []Chapter{}
	for _, n := range nums {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		idx, err := atoi(n)
		if err != nil {
			continue
		}
		if idx > 0 && idx <= len(all) {
			out = append(out, all[idx-1])
		}
	}
	return out
}

func atoi(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}
