package globtree

// token is either a literal byte or the wildcard marker.
type token uint16

// tokenWildcard represents "*" and matches any run of zero or more
// characters. Values below 256 are literal bytes.
const tokenWildcard token = 1 << 8

func tokenize(pattern string) []token {
	tokens := make([]token, 0, len(pattern))
	for i := 0; i < len(pattern); i++ {
		if pattern[i] == '*' {
			// Collapse wildcard runs; "**" matches exactly what "*" does.
			if len(tokens) > 0 && tokens[len(tokens)-1] == tokenWildcard {
				continue
			}
			tokens = append(tokens, tokenWildcard)
		} else {
			tokens = append(tokens, token(pattern[i]))
		}
	}
	return tokens
}
