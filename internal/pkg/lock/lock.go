// Package lock provides per-account locking for check-then-act sections
// such as withdrawal reservation, deposit cooldown and bonus claims.
package lock

import (
	"context"
	"sync"
	"time"
)

// accountMutex wraps a mutex with reference counting for pooling.
type accountMutex struct {
	mu       sync.Mutex
	refCount int
}

// AccountLock serializes balance-affecting operations per account.
// The database conditional update remains the source of truth; the lock
// avoids needless conflicting round trips within one process.
type AccountLock struct {
	locks sync.Map // map[int64]*accountMutex
	pool  sync.Pool
}

// NewAccountLock creates a new AccountLock instance.
func NewAccountLock() *AccountLock {
	return &AccountLock{
		pool: sync.Pool{
			New: func() any {
				return &accountMutex{}
			},
		},
	}
}

// getLock retrieves or creates a mutex for the given account ID.
func (al *AccountLock) getLock(accountID int64) *accountMutex {
	if v, ok := al.locks.Load(accountID); ok {
		return v.(*accountMutex)
	}

	newLock := al.pool.Get().(*accountMutex)
	newLock.refCount = 0

	actual, loaded := al.locks.LoadOrStore(accountID, newLock)
	if loaded {
		// Another goroutine created the lock first, return ours to pool
		al.pool.Put(newLock)
	}
	return actual.(*accountMutex)
}

// Lock acquires the lock for an account.
func (al *AccountLock) Lock(accountID int64) {
	lock := al.getLock(accountID)
	lock.mu.Lock()
	lock.refCount++
}

// Unlock releases the lock for an account.
func (al *AccountLock) Unlock(accountID int64) {
	if v, ok := al.locks.Load(accountID); ok {
		lock := v.(*accountMutex)
		lock.refCount--
		lock.mu.Unlock()
	}
}

// TryLock attempts to acquire the lock without blocking.
func (al *AccountLock) TryLock(accountID int64) bool {
	lock := al.getLock(accountID)
	if lock.mu.TryLock() {
		lock.refCount++
		return true
	}
	return false
}

// LockWithTimeout attempts to acquire the lock within the timeout.
// Returns true if the lock was acquired.
func (al *AccountLock) LockWithTimeout(ctx context.Context, accountID int64, timeout time.Duration) bool {
	lock := al.getLock(accountID)

	done := make(chan struct{})
	go func() {
		lock.mu.Lock()
		close(done)
	}()

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case <-done:
		lock.refCount++
		return true
	case <-timeoutCtx.Done():
		// The waiting goroutine will eventually acquire the mutex;
		// release it again once it does.
		go func() {
			<-done
			lock.mu.Unlock()
		}()
		return false
	}
}

// WithLock executes fn while holding the account's lock.
func (al *AccountLock) WithLock(accountID int64, fn func() error) error {
	al.Lock(accountID)
	defer al.Unlock(accountID)
	return fn()
}

// WithLockContext executes fn while holding the account's lock, giving up
// after timeout.
func (al *AccountLock) WithLockContext(ctx context.Context, accountID int64, timeout time.Duration, fn func() error) error {
	if !al.LockWithTimeout(ctx, accountID, timeout) {
		return ErrLockTimeout
	}
	defer al.Unlock(accountID)

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	return fn()
}
