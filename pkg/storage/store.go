package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrUnsupportedStore is returned for store URLs with an unknown scheme
var ErrUnsupportedStore = errors.New("unsupported store")

// Store is a set store used to deduplicate per-item results written by
// workers. Members are int64 values grouped into named collections.
type Store interface {
	// Add inserts members into a collection; existing members are ignored
	Add(ctx context.Context, collection string, members ...int64) error
	// Count returns the number of distinct members in a collection
	Count(ctx context.Context, collection string) (int64, error)
	// Delete removes a collection and all its members
	Delete(ctx context.Context, collection string) error
	// Ping checks the store is reachable
	Ping(ctx context.Context) error
	Close() error
}

// Open connects to the store described by rawURL.
//
//	bolt:///var/lib/flock/results.db
//	etcd://10.0.0.1:2379,10.0.0.2:2379
func Open(ctx context.Context, rawURL string) (Store, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedStore, err)
	}

	switch u.Scheme {
	case "bolt":
		path := u.Path
		if u.Host != "" {
			path = u.Host + path
		}
		if path == "" {
			return nil, fmt.Errorf("%w: bolt url needs a file path", ErrUnsupportedStore)
		}
		return NewBoltStore(path)
	case "etcd":
		if u.Host == "" {
			return nil, fmt.Errorf("%w: etcd url needs endpoints", ErrUnsupportedStore)
		}
		return NewEtcdStore(ctx, strings.Split(u.Host, ","))
	default:
		return nil, fmt.Errorf("%w: scheme %q", ErrUnsupportedStore, u.Scheme)
	}
}
