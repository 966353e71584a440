package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
)

// ErrLockNotObtained is returned when another process holds the lock.
var ErrLockNotObtained = errors.New("could not obtain lock")

// ObtainJobLock serializes batch runs (reconcile, backfill) per tenant across
// processes. Release the returned function when done. A nil locker means
// single-process deployment: the caller proceeds unlocked.
func ObtainJobLock(ctx context.Context, locker *redislock.Client, jobName string, tenantId string, ttl time.Duration) (func(), error) {
	if locker == nil {
		return func() {}, nil
	}
	lockKey := fmt.Sprintf("%s:%s", jobName, tenantId)
	lock, err := locker.Obtain(ctx, lockKey, ttl, nil)
	if err == redislock.ErrNotObtained {
		return nil, ErrLockNotObtained
	} else if err != nil {
		return nil, err
	}
	return func() { _ = lock.Release(ctx) }, nil
}
