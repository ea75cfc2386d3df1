package utils

// Duplicates returns the items that occur more than once, each reported
// once, in the order their second occurrence appears. Config validation
// uses it to name repeated topics.
func Duplicates[T comparable](items []T) []T {
	seen := make(map[T]struct{}, len(items))
	reported := make(map[T]struct{})
	var dups []T
	for _, item := range items {
		if _, ok := seen[item]; !ok {
			seen[item] = struct{}{}
			continue
		}
		if _, ok := reported[item]; !ok {
			reported[item] = struct{}{}
			dups = append(dups, item)
		}
	}
	return dups
}
