// Package ids provides small id-allocation and slug helpers; the session
// manager allocates session ids with NextN.
package ids

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ao-project/ao/internal/paths"
)

// NextN returns the smallest positive integer not already used as a
// "<prefix>-<N>" suffix among ids (which may include unrelated prefixes or
// the literal "<prefix>-orchestrator", both ignored).
func NextN(prefix string, ids []string) int {
	used := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		p, suffix, ok := paths.ParseID(id)
		if !ok || p != prefix {
			continue
		}
		n, err := strconv.Atoi(suffix)
		if err != nil {
			continue
		}
		used[n] = struct{}{}
	}
	for n := 1; ; n++ {
		if _, taken := used[n]; !taken {
			return n
		}
	}
}

var nonSlugRune = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// Slugify lowercases s and collapses runs of non-alphanumeric characters into
// single hyphens, trimming leading/trailing hyphens.
func Slugify(s string) string {
	lowered := strings.ToLower(strings.TrimSpace(s))
	replaced := nonSlugRune.ReplaceAllString(lowered, "-")
	return strings.Trim(replaced, "-")
}
