package ledger

import "sort"

func sortStrings(s []string) {
	sort.Strings(s)
}

// sortedUniqueStrings returns the sorted, de-duplicated contents of ss.
func sortedUniqueStrings(ss []string) []string {
	seen := make(map[string]bool, len(ss))
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

func appendUnique(ss []string, v string) []string {
	return sortedUniqueStrings(append(append([]string(nil), ss...), v))
}
