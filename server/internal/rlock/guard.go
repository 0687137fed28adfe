package rlock

// Guard ties a Mutex to a scope. Acquire locks the mutex and the deferred
// Release unlocks it on every exit path, including panics:
//
//	g := rlock.Acquire(&m)
//	defer g.Release()
//
// A Guard tracks whether it currently holds its mutex and panics on a
// double Lock or Unlock. A Guard is used by a single goroutine.
type Guard struct {
	m      *Mutex
	locked bool
}

// Acquire returns a Guard that holds m.
func Acquire(m *Mutex) *Guard {
	g := &Guard{m: m}
	g.Lock()
	return g
}

// Lock reacquires the mutex after an explicit Unlock.
func (g *Guard) Lock() {
	if g.locked {
		panic("rlock: guard locked twice")
	}
	g.m.Lock()
	g.locked = true
}

// Unlock releases the mutex before the end of the scope.
func (g *Guard) Unlock() {
	if !g.locked {
		panic("rlock: guard unlocked twice")
	}
	g.locked = false
	g.m.Unlock()
}

// Release unlocks the mutex if the guard still holds it. It is meant to be
// deferred right after Acquire.
func (g *Guard) Release() {
	if g.locked {
		g.Unlock()
	}
}

// Unlocked releases the mutex for the duration of f and reacquires it when f
// returns or panics. It is used to call into code, such as callbacks, that
// may block on or reenter the component the mutex protects.
func (g *Guard) Unlocked(f func()) {
	g.Unlock()
	defer g.Lock()
	f()
}
