package diskmap

import "sync"

// RWLocker is the lock surface used by a map.
type RWLocker interface {
	sync.Locker
	RLock()
	RUnlock()
}

// Locking decides how a map synchronizes access. It is chosen once, at
// construction time.
type Locking interface {
	// Structure guards trie shape changes and Clear.
	Structure() RWLocker
	// Bucket returns the lock guarding the leaf bucket at pos.
	Bucket(pos int64) RWLocker
}

// DefaultStripes is the number of bucket lock stripes of StripedLocking.
const DefaultStripes = 64

type striped struct {
	structure sync.RWMutex
	stripes   []sync.RWMutex
}

// StripedLocking returns a strategy with n bucket stripes (DefaultStripes if
// n < 1). Buckets hashing to different stripes proceed in parallel.
func StripedLocking(n int) Locking {
	if n < 1 {
		n = DefaultStripes
	}
	return &striped{stripes: make([]sync.RWMutex, n)}
}

func (s *striped) Structure() RWLocker { return &s.structure }

func (s *striped) Bucket(pos int64) RWLocker {
	// Buckets are allocated at distinct positions, so mixing the bits is
	// enough to spread them.
	h := uint64(pos) * 0x9E3779B97F4A7C15 //nolint:gosec // G115: positions are non-negative
	return &s.stripes[(h>>32)%uint64(len(s.stripes))]
}

type noLock struct{}

func (noLock) Lock()    {}
func (noLock) Unlock()  {}
func (noLock) RLock()   {}
func (noLock) RUnlock() {}

type noLocking struct{}

// NoLocking returns a strategy without any synchronization, for maps whose
// callers already guarantee exclusive access (scans, scratch maps).
func NoLocking() Locking { return noLocking{} }

func (noLocking) Structure() RWLocker   { return noLock{} }
func (noLocking) Bucket(int64) RWLocker { return noLock{} }

// Gate separates mutations from a barrier that needs the volume at rest,
// such as a backup. Mutations run concurrently with each other. They wait
// only while the barrier is held, never while it is pending, so a mutation
// may enter again from inside another one (a type id persisted while a key
// is encoded). A nil *Gate admits everything.
type Gate struct {
	mu     sync.Mutex
	cond   *sync.Cond
	active int
	held   bool
}

// NewGate returns an open gate.
func NewGate() *Gate {
	g := &Gate{}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// Enter registers a mutation, waiting while the barrier is held.
func (g *Gate) Enter() {
	if g == nil {
		return
	}
	g.mu.Lock()
	for g.held {
		g.cond.Wait()
	}
	g.active++
	g.mu.Unlock()
}

// Exit ends a mutation started with Enter.
func (g *Gate) Exit() {
	if g == nil {
		return
	}
	g.mu.Lock()
	g.active--
	if g.active == 0 {
		g.cond.Broadcast()
	}
	g.mu.Unlock()
}

// Hold waits until no mutation is in flight and keeps new ones out until
// release is called. A steady stream of mutations can delay it.
func (g *Gate) Hold() (release func()) {
	g.mu.Lock()
	for g.held || g.active > 0 {
		g.cond.Wait()
	}
	g.held = true
	g.mu.Unlock()

	return func() {
		g.mu.Lock()
		g.held = false
		g.cond.Broadcast()
		g.mu.Unlock()
	}
}
