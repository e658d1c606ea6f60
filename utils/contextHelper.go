package utils

import (
	"context"
	"strconv"

	"github.com/hohbackend/budget_backend/appctx"
)

// Alias the shared context key type so existing code keeps working.
type contextKey = appctx.ContextKey

var (
	ContextKeyToken         = appctx.ContextKeyToken
	ContextKeyUserId        = appctx.ContextKeyUserId
	ContextKeyUserName      = appctx.ContextKeyUserName
	ContextKeyUsername      = appctx.ContextKeyUsername
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
)

func GetTokenFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyToken)
}

// GetUsernameFromContext returns the login (email) of the authenticated user.
func GetUsernameFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyUsername)
}

func GetUserIdFromContext(ctx context.Context) (int, bool) {
	return appctx.GetInt(ctx, ContextKeyUserId)
}

func GetUserNameFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyUserName)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetTokenInContext(ctx context.Context, token string) context.Context {
	return appctx.Set(ctx, ContextKeyToken, token)
}

func SetUsernameInContext(ctx context.Context, username string) context.Context {
	return appctx.Set(ctx, ContextKeyUsername, username)
}

func SetUserIdInContext(ctx context.Context, id int) context.Context {
	return appctx.Set(ctx, ContextKeyUserId, id)
}

func SetUserNameInContext(ctx context.Context, name string) context.Context {
	return appctx.Set(ctx, ContextKeyUserName, name)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

// ActorFromContext is the actor string recorded in history rows for API callers.
func ActorFromContext(ctx context.Context) string {
	if username, ok := GetUsernameFromContext(ctx); ok && username != "" {
		return username
	}
	if id, ok := GetUserIdFromContext(ctx); ok {
		return "user_" + strconv.Itoa(id)
	}
	return "system"
}
