package utils

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/hohbackend/budget_backend/config"
)

const LatestDataCacheLifespan = 5 * time.Minute

func GetTypeName[T any]() string {
	var v T
	return reflect.TypeOf(v).Name()
}

func cacheKey[T any](id int) string {
	return GetTypeName[T]() + ":" + fmt.Sprint(id)
}

// StoreRedis caches obj under "<Type>:<id>". No-op without Redis.
func StoreRedis[T any](ctx context.Context, obj *T, id int, exp time.Duration) error {
	return config.SetRedisObject(ctx, cacheKey[T](id), obj, exp)
}

// RetrieveRedis returns nil, nil on a cache miss.
func RetrieveRedis[T any](ctx context.Context, id int) (*T, error) {
	var result T
	exists, err := config.GetRedisObject(ctx, cacheKey[T](id), &result)
	if err != nil || !exists {
		return nil, err
	}
	return &result, nil
}

func RemoveRedis[T any](ctx context.Context, id int) error {
	return config.RemoveRedisKey(ctx, cacheKey[T](id))
}
