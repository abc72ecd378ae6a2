package opportunity

import (
	"fmt"
	"hash/fnv"
	"math"
	"strings"

	"flipradar/server/internal/models"
)

// Fingerprint derives the deduplication key for a listing: normalized
// title, price bucket and platform hashed together. Listings of the
// same item at nearby prices collapse to one key, so a seller nudging
// the price within a bucket does not produce a duplicate opportunity.
func Fingerprint(title string, price float64, platform models.Platform, bucketSize float64) string {
	if bucketSize <= 0 {
		bucketSize = 10
	}
	bucket := int(math.Floor(price / bucketSize))

	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%d|%s", normalizeTitle(title), bucket, platform)
	return fmt.Sprintf("%016x", h.Sum64())
}

// normalizeTitle lowercases, drops punctuation and collapses runs of
// whitespace so cosmetic listing-title edits map to the same key.
func normalizeTitle(title string) string {
	var b strings.Builder
	b.Grow(len(title))

	lastSpace := true
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}
