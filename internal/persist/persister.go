package persist

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/noah-isme/modelshop-checkout/internal/cart"
	"github.com/noah-isme/modelshop-checkout/internal/coupon"
	"github.com/noah-isme/modelshop-checkout/internal/obs"
)

// Record names double as key namespaces.
const (
	RecordCart    = "cart"
	RecordAddress = "address"
	RecordCoupon  = "coupon"
)

// Key returns the storage key of one record of a session.
func Key(record, sessionID string) string {
	return record + ":" + sessionID
}

// Snapshot is the persisted part of a checkout session. Derived totals are
// never stored.
type Snapshot struct {
	Items   []cart.LineItem
	Address *cart.Address
	Coupon  *coupon.Coupon
}

// Persister saves and restores session snapshots as three independent records.
type Persister struct {
	KV     KV
	Logger zerolog.Logger

	mu      sync.Mutex
	written map[string][sha256.Size]byte
}

// NewPersister wraps kv.
func NewPersister(kv KV, logger zerolog.Logger) *Persister {
	return &Persister{KV: kv, Logger: logger}
}

// Save writes the snapshot. Failures are logged and counted, never returned;
// a session that cannot be persisted keeps working in memory. Records whose
// content did not change since the last write are skipped.
func (p *Persister) Save(ctx context.Context, sessionID string, snap Snapshot) {
	if p == nil || p.KV == nil {
		return
	}
	items := snap.Items
	if items == nil {
		items = []cart.LineItem{}
	}
	p.saveRecord(ctx, sessionID, RecordCart, items)
	if snap.Address != nil {
		p.saveRecord(ctx, sessionID, RecordAddress, snap.Address)
	} else {
		p.deleteRecord(ctx, sessionID, RecordAddress)
	}
	if snap.Coupon != nil {
		p.saveRecord(ctx, sessionID, RecordCoupon, snap.Coupon)
	} else {
		p.deleteRecord(ctx, sessionID, RecordCoupon)
	}
}

func (p *Persister) saveRecord(ctx context.Context, sessionID, record string, value any) {
	key := Key(record, sessionID)
	data, err := json.Marshal(value)
	if err != nil {
		p.Logger.Error().Err(err).Str("key", key).Msg("persist encode")
		obs.CountPersistence("save", record, "error")
		return
	}
	sum := sha256.Sum256(data)
	if p.unchanged(key, sum) {
		obs.CountPersistence("save", record, "skipped")
		return
	}
	if err := p.KV.Set(ctx, key, data); err != nil {
		p.forget(key)
		p.Logger.Warn().Err(err).Str("key", key).Msg("persist write failed")
		obs.CountPersistence("save", record, "error")
		return
	}
	p.remember(key, sum)
	obs.CountPersistence("save", record, "ok")
}

func (p *Persister) deleteRecord(ctx context.Context, sessionID, record string) {
	key := Key(record, sessionID)
	var none [sha256.Size]byte
	if p.unchanged(key, none) {
		return
	}
	if err := p.KV.Delete(ctx, key); err != nil {
		p.forget(key)
		p.Logger.Warn().Err(err).Str("key", key).Msg("persist delete failed")
		obs.CountPersistence("delete", record, "error")
		return
	}
	p.remember(key, none)
	obs.CountPersistence("delete", record, "ok")
}

// Load restores a snapshot. A record that is missing yields its zero value;
// a record that fails to parse is discarded on its own and deleted. The
// error is non-nil only when the store itself failed; the snapshot then
// holds whatever could be read.
func (p *Persister) Load(ctx context.Context, sessionID string) (Snapshot, error) {
	var snap Snapshot
	if p == nil || p.KV == nil {
		return snap, nil
	}
	var errs []error

	var items []cart.LineItem
	ok, err := p.loadRecord(ctx, sessionID, RecordCart, &items)
	errs = append(errs, err)
	if ok {
		snap.Items = cart.NewStore(items).Items()
	}

	var addr cart.Address
	ok, err = p.loadRecord(ctx, sessionID, RecordAddress, &addr)
	errs = append(errs, err)
	if ok {
		snap.Address = &addr
	}

	var c coupon.Coupon
	ok, err = p.loadRecord(ctx, sessionID, RecordCoupon, &c)
	errs = append(errs, err)
	if ok && coupon.Normalize(c.Code) != "" {
		snap.Coupon = &c
	}
	return snap, errors.Join(errs...)
}

func (p *Persister) loadRecord(ctx context.Context, sessionID, record string, dst any) (bool, error) {
	key := Key(record, sessionID)
	data, err := p.KV.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		obs.CountPersistence("load", record, "missing")
		return false, nil
	}
	if err != nil {
		p.Logger.Warn().Err(err).Str("key", key).Msg("persist read failed")
		obs.CountPersistence("load", record, "error")
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		p.Logger.Warn().Err(err).Str("key", key).Msg("discarding malformed record")
		obs.CountPersistence("load", record, "malformed")
		if delErr := p.KV.Delete(ctx, key); delErr != nil {
			p.Logger.Warn().Err(delErr).Str("key", key).Msg("persist delete failed")
		}
		p.forget(key)
		return false, nil
	}
	p.remember(key, sha256.Sum256(data))
	obs.CountPersistence("load", record, "ok")
	return true, nil
}

// Purge removes every record of the session.
func (p *Persister) Purge(ctx context.Context, sessionID string) error {
	if p == nil || p.KV == nil {
		return nil
	}
	keys := []string{
		Key(RecordCart, sessionID),
		Key(RecordAddress, sessionID),
		Key(RecordCoupon, sessionID),
	}
	for _, k := range keys {
		p.forget(k)
	}
	return p.KV.Delete(ctx, keys...)
}

// Forget drops the write cache of a session, forcing the next Save to write
// every record. Used when a session is evicted from memory.
func (p *Persister) Forget(sessionID string) {
	if p == nil {
		return
	}
	for _, record := range []string{RecordCart, RecordAddress, RecordCoupon} {
		p.forget(Key(record, sessionID))
	}
}

func (p *Persister) unchanged(key string, sum [sha256.Size]byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	prev, ok := p.written[key]
	return ok && prev == sum
}

func (p *Persister) remember(key string, sum [sha256.Size]byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.written == nil {
		p.written = make(map[string][sha256.Size]byte)
	}
	p.written[key] = sum
}

func (p *Persister) forget(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.written, key)
}
