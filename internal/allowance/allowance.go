package allowance

import (
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/dwarvesf/secret-bridge/internal/model"
)

type ICache interface {
	Get(owner, spender, asset string) (model.AllowanceSnapshot, bool)
	Set(snapshot model.AllowanceSnapshot)
	Invalidate(owner, spender, asset string)
}

// Cache holds allowance reads per (owner, spender, asset). It is the only
// state shared between operations.
type Cache struct {
	ttl   time.Duration
	store *cache.Cache
}

func New(ttl time.Duration) *Cache {
	return &Cache{
		ttl:   ttl,
		store: cache.New(ttl, 2*ttl),
	}
}

func Key(owner, spender, asset string) string {
	return strings.ToLower(owner) + ":" + strings.ToLower(spender) + ":" + strings.ToLower(asset)
}

func (c *Cache) Get(owner, spender, asset string) (model.AllowanceSnapshot, bool) {
	v, ok := c.store.Get(Key(owner, spender, asset))
	if !ok {
		return model.AllowanceSnapshot{}, false
	}
	snapshot := v.(model.AllowanceSnapshot)
	if !snapshot.Expiry.IsZero() && time.Now().After(snapshot.Expiry) {
		return model.AllowanceSnapshot{}, false
	}
	return snapshot, true
}

func (c *Cache) Set(snapshot model.AllowanceSnapshot) {
	if snapshot.Expiry.IsZero() {
		snapshot.Expiry = time.Now().Add(c.ttl)
	}
	c.store.Set(Key(snapshot.Owner, snapshot.Spender, snapshot.Asset), snapshot, time.Until(snapshot.Expiry))
}

func (c *Cache) Invalidate(owner, spender, asset string) {
	c.store.Delete(Key(owner, spender, asset))
}
