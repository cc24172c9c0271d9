package utils

import (
	"context"

	"bitbucket.org/brokerlink/customs_backend/appctx"
)

var (
	ContextKeySourceSystem  = appctx.ContextKeySourceSystem
	ContextKeyUsername      = appctx.ContextKeyUsername
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
)

func GetSourceSystemFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeySourceSystem)
}

func GetUsernameFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyUsername)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetSourceSystemInContext(ctx context.Context, sourceSystem string) context.Context {
	return appctx.Set(ctx, ContextKeySourceSystem, sourceSystem)
}

func SetUsernameInContext(ctx context.Context, username string) context.Context {
	return appctx.Set(ctx, ContextKeyUsername, username)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}
