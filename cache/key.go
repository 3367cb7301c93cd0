package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Key derives the deterministic cache key for a (symbol, range, interval)
// tuple. The same tuple always hashes to the same key across processes.
func Key(symbol string, start, end time.Time, interval string) string {
	payload := fmt.Sprintf("%s|%s|%s|%s",
		symbol,
		start.UTC().Format("2006-01-02"),
		end.UTC().Format("2006-01-02"),
		interval,
	)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])[:32]
}
