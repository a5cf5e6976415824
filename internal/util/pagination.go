package util

// Clamp floors first_index/limit query values at zero. Defaults for absent
// values are applied at parse time by the handlers.
func Clamp(firstIndex, limit int) (offset int, lim int) {
	if firstIndex < 0 {
		firstIndex = 0
	}
	if limit < 0 {
		limit = 0
	}
	return firstIndex, limit
}
