package core

import "strings"

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// ChunkStrings splits `ids` into consecutive chunks of at most `size` elements.
func ChunkStrings(ids []string, size int) [][]string {
	if size <= 0 {
		size = len(ids)
	}
	chunks := make([][]string, 0, len(ids)/max(size, 1)+1)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
