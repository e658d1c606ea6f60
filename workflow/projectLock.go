package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/hohbackend/budget_backend/config"
	"github.com/hohbackend/budget_backend/utils"
)

const projectLockTTL = 30 * time.Second

// withLock serializes fn across instances under a Redis lock.
// Without Redis fn runs unguarded and the row locks inside the store still apply.
func withLock(ctx context.Context, key string, fn func() error) error {
	lock, err := config.ObtainLock(ctx, key, projectLockTTL)
	if errors.Is(err, redislock.ErrNotObtained) {
		return fmt.Errorf("%w: %s is busy", utils.ErrorConcurrencyConflict, key)
	}
	if err != nil {
		return err
	}
	if lock != nil {
		defer func() {
			if rerr := lock.Release(context.Background()); rerr != nil && !errors.Is(rerr, redislock.ErrLockNotHeld) {
				config.GetLogger().WithField("field", "withLock").Warn("release " + key + ": " + rerr.Error())
			}
		}()
	}
	return fn()
}

func projectLockKey(projectId int) string {
	return fmt.Sprintf("budget:project:%d", projectId)
}
