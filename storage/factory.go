package storage

import "fmt"

// NewStore returns the backend named by kind. "none" returns a nil store:
// persistence only happens when explicitly configured.
func NewStore(kind, sqlitePath string) (Store, error) {
	switch kind {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(sqlitePath), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", kind)
	}
}

func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
