package sets

// Diff returns the elements of a that are not in b, preserving order.
func Diff(a, b []string) []string {
	if len(a) == 0 {
		return nil
	}

	exclude := make(map[string]bool, len(b))
	for _, s := range b {
		exclude[s] = true
	}

	var out []string
	for _, s := range a {
		if !exclude[s] {
			out = append(out, s)
		}
	}
	return out
}

// Contains reports whether s is an element of list.
func Contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// Dedup returns list with duplicates removed, keeping first occurrences.
func Dedup(list []string) []string {
	if len(list) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(list))
	out := make([]string, 0, len(list))
	for _, s := range list {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// Union merges lists, removing duplicates and keeping first occurrences.
func Union(lists ...[]string) []string {
	var merged []string
	for _, list := range lists {
		merged = append(merged, list...)
	}
	return Dedup(merged)
}
