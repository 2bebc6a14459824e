package lock

import (
	"sync"
	"time"
)

// InFlight は短命な「処理中」マーカー。
// TTLを過ぎたマーカーは取り直せる（解放漏れで永久に止まらないように）。
type InFlight struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	keys map[string]time.Time
}

func NewInFlight(ttl time.Duration) *InFlight {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &InFlight{
		ttl:  ttl,
		now:  time.Now,
		keys: map[string]time.Time{},
	}
}

// WithClock は時計を差し替える（テスト用）。
func (f *InFlight) WithClock(now func() time.Time) *InFlight {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = now
	return f
}

// TryAcquire は未使用なら取得してtrue、使用中ならfalse。
func (f *InFlight) TryAcquire(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	if exp, ok := f.keys[key]; ok && now.Before(exp) {
		return false
	}
	f.keys[key] = now.Add(f.ttl)

	// 期限切れの掃除
	for k, exp := range f.keys {
		if !now.Before(exp) {
			delete(f.keys, k)
		}
	}
	return true
}

func (f *InFlight) Release(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.keys, key)
}
