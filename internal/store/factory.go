package store

import "fmt"

// Open creates a Store for the configured backend. The path is the
// database directory for badger and the server address for redis; it is
// ignored for memory.
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "badger":
		return OpenBadgerStore(path)
	case "redis":
		return OpenRedisStore(path)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", backend)
	}
}
