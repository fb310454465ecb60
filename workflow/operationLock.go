package workflow

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/bsm/redislock"
	"github.com/reelfund/donors_backend/config"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ErrOperationInProgress is returned when another operator is already running
// the same administrative operation.
var ErrOperationInProgress = fmt.Errorf("operation already in progress")

// advisoryLockKey hashes an operation name into the int64 keyspace of
// Postgres advisory locks.
func advisoryLockKey(name string) int64 {
	h := fnv.New64a()
	h.Write([]byte("ops:" + name))
	return int64(h.Sum64())
}

// AcquireOperationLock serializes an administrative operation across
// instances. A Redis lock is attempted first as a cheap fast-fail; the
// Postgres advisory lock is the reliable guard. Session advisory locks are
// connection-scoped, so the lock is taken on a dedicated connection pinned
// out of the pool until release.
//
// The returned release func must be called when the operation finishes.
func AcquireOperationLock(ctx context.Context, db *gorm.DB, logger *logrus.Logger, name string) (func(), error) {
	var redisLease *redislock.Lock
	if locker := config.GetRedisLock(); locker != nil {
		lease, err := locker.Obtain(ctx, "ops:"+name, 10*time.Minute, nil)
		if err == redislock.ErrNotObtained {
			return nil, ErrOperationInProgress
		} else if err != nil {
			logger.WithFields(logrus.Fields{
				"operation": name,
			}).Warn("error obtaining redis lock; falling through to advisory lock: " + err.Error())
		} else {
			redisLease = lease
		}
	}

	releaseRedis := func() {
		if redisLease != nil {
			_ = redisLease.Release(context.Background())
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		releaseRedis()
		return nil, err
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		releaseRedis()
		return nil, err
	}

	key := advisoryLockKey(name)
	var ok bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&ok); err != nil {
		_ = conn.Close()
		releaseRedis()
		return nil, err
	}
	if !ok {
		_ = conn.Close()
		releaseRedis()
		return nil, ErrOperationInProgress
	}

	release := func() {
		var unlocked bool
		_ = conn.QueryRowContext(context.Background(), "SELECT pg_advisory_unlock($1)", key).Scan(&unlocked)
		_ = conn.Close()
		releaseRedis()
	}
	return release, nil
}
