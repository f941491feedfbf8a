package bbolt

import (
	"context"
	"encoding/binary"
	"errors"
	"time"

	bolt "go.etcd.io/bbolt"

	pr "github.com/unkn0wn-root/formcache/provider"
)

// Provider is a persistent single-node store on a Bolt file. A restarted
// process keeps serving the last fetched directory until it expires.
//
// Stored layout per key: expiresAt(i64 be, unix nanos; 0=none) | value.
// The prefix is stripped on Get.
type Provider struct {
	db     *bolt.DB
	bucket []byte
	now    func() time.Time
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	Path    string
	Bucket  string        // "" => "formcache"
	Timeout time.Duration // file lock timeout; 0 => 1s
}

func Open(cfg Config) (*Provider, error) {
	if cfg.Path == "" {
		return nil, errors.New("bbolt: path is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}
	db, err := bolt.Open(cfg.Path, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, err
	}
	bucket := []byte("formcache")
	if cfg.Bucket != "" {
		bucket = []byte(cfg.Bucket)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Provider{db: db, bucket: bucket, now: time.Now}, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	var out []byte
	var found, expired bool
	err := p.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(p.bucket).Get([]byte(key))
		if len(v) < 8 {
			return nil
		}
		exp := int64(binary.BigEndian.Uint64(v[:8]))
		if exp > 0 && p.now().UnixNano() >= exp {
			expired = true
			return nil
		}
		// bolt memory is only valid inside the transaction
		out = make([]byte, len(v)-8)
		copy(out, v[8:])
		found = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if expired {
		_ = p.Del(context.Background(), key)
		return nil, false, nil
	}
	if !found {
		return nil, false, nil
	}
	return out, true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	var exp int64
	if ttl > 0 {
		exp = p.now().Add(ttl).UnixNano()
	}
	buf := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(buf[:8], uint64(exp))
	copy(buf[8:], value)

	err := p.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(p.bucket).Put([]byte(key), buf)
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	return p.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(p.bucket).Delete([]byte(key))
	})
}

func (p *Provider) Close(_ context.Context) error {
	return p.db.Close()
}
