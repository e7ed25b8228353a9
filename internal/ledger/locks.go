package ledger

import "sync"

// ─── Per-Account Locking ────────────────────────────────────────────────────

// keyedMutex provides one mutex per key, created lazily. Locking distinct
// keys never contends; a single global lock would serialize unrelated
// users.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Lock acquires the mutex for key.
func (k *keyedMutex) Lock(key string) {
	k.get(key).Lock()
}

// Unlock releases the mutex for key.
func (k *keyedMutex) Unlock(key string) {
	k.get(key).Unlock()
}

func (k *keyedMutex) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	return m
}
