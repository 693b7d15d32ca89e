package instance

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

// indexKeyPatterns match the per-instance parameter and artifact index
// keys. Every instance with registered state owns at least one of them.
var indexKeyPatterns = []string{"loft:*:params", "loft:*:artifacts"}

// Discover lists every loft instance present on the Redis server by
// scanning for index keys and extracting the namespace segment. Names
// are returned sorted; keys whose middle segment is not a valid
// instance name are ignored.
func Discover(ctx context.Context, rdb *redis.Client) ([]string, error) {
	seen := make(map[string]bool)

	for _, pattern := range indexKeyPatterns {
		iter := rdb.Scan(ctx, 0, pattern, 0).Iterator()
		for iter.Next(ctx) {
			if name, ok := instanceFromIndexKey(iter.Val()); ok {
				seen[name] = true
			}
		}
		if err := iter.Err(); err != nil {
			return nil, fmt.Errorf("failed to scan for instances: %w", err)
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// instanceFromIndexKey parses "loft:{name}:params" or
// "loft:{name}:artifacts" into the instance name. The Redis glob in the
// scan patterns also matches keys like "loft:{name}:param:params" (a
// parameter whose id is "params"), so the segment count and name rules
// are re-checked here.
func instanceFromIndexKey(key string) (string, bool) {
	parts := strings.Split(key, ":")
	if len(parts) != 3 || parts[0] != "loft" {
		return "", false
	}
	if parts[2] != "params" && parts[2] != "artifacts" {
		return "", false
	}
	name := parts[1]
	if err := ValidateName(name); err != nil {
		return "", false
	}
	return name, true
}
