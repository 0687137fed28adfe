// Package rlock implements a mutex that may be locked recursively by the
// goroutine that holds it, together with guards that tie a lock to a scope.
package rlock

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Mutex is a reentrant mutual exclusion lock. The goroutine that holds the
// lock may call Lock again without blocking; every Lock must be paired with
// exactly one Unlock. Other goroutines block until the outermost Unlock.
// The zero value is an unlocked Mutex. A Mutex must not be copied after
// first use.
type Mutex struct {
	mu sync.Mutex

	// owner is the id of the goroutine holding mu, or 0 when unlocked.
	owner atomic.Uint64
	// count is only written by the owner while mu is held.
	count atomic.Int32
}

// Lock acquires the mutex. If the calling goroutine already holds it, the
// recursion count is increased and Lock returns immediately.
func (m *Mutex) Lock() {
	id := goroutineID()
	if m.owner.Load() == id {
		m.count.Add(1)
		return
	}
	m.mu.Lock()
	m.owner.Store(id)
	m.count.Store(1)
}

// TryLock attempts to acquire the mutex without blocking and reports
// whether it succeeded. It always succeeds for the current owner.
func (m *Mutex) TryLock() bool {
	id := goroutineID()
	if m.owner.Load() == id {
		m.count.Add(1)
		return true
	}
	if !m.mu.TryLock() {
		return false
	}
	m.owner.Store(id)
	m.count.Store(1)
	return true
}

// Unlock releases one level of recursion. The underlying lock is released
// once the count drops to zero. Unlock panics if the calling goroutine does
// not hold the mutex.
func (m *Mutex) Unlock() {
	if !m.LockedByCurrentGoroutine() {
		panic("rlock: unlock of mutex not held by the calling goroutine")
	}
	if m.count.Add(-1) > 0 {
		return
	}
	m.owner.Store(0)
	m.mu.Unlock()
}

// Locked reports if any goroutine currently holds the mutex. The result is
// only a snapshot when called by a goroutine other than the owner.
func (m *Mutex) Locked() bool {
	return m.count.Load() > 0
}

// LockedByCurrentGoroutine reports if the calling goroutine holds the mutex.
func (m *Mutex) LockedByCurrentGoroutine() bool {
	return m.count.Load() > 0 && m.owner.Load() == goroutineID()
}

// goroutineID returns the id of the calling goroutine, parsed from the
// header line of its stack trace ("goroutine 18 [running]:"). Ids start at
// 1, so 0 is never a valid owner.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] < '0' || buf[i] > '9' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}
