// Package urlmatch implements the glob dialect used by userscript
// match/include/exclude patterns: "*" matches any run of zero or more
// characters, every other character matches literally, and a pattern is
// anchored to the full URL.
package urlmatch

// Match reports whether url matches pattern in its entirety.
func Match(pattern, url string) bool {
	var pi, si int
	starPi, starSi := -1, 0

	for si < len(url) {
		switch {
		case pi < len(pattern) && pattern[pi] == '*':
			starPi, starSi = pi, si
			pi++
		case pi < len(pattern) && pattern[pi] == url[si]:
			pi++
			si++
		case starPi >= 0:
			// Backtrack: let the last wildcard swallow one more character.
			starSi++
			si = starSi
			pi = starPi + 1
		default:
			return false
		}
	}

	for pi < len(pattern) && pattern[pi] == '*' {
		pi++
	}
	return pi == len(pattern)
}
