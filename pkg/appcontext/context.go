package appcontext

import (
	"context"

	"github.com/sirupsen/logrus"
)

type contextId int

const (
	hostIdKeyId contextId = iota
	jobIdKeyId
	partIdKeyId
	requestIdKeyId
)

func WithRequestId(ctx context.Context, requestId string) context.Context {
	return context.WithValue(ctx, requestIdKeyId, requestId)
}

func WithHostId(ctx context.Context, hostId string) context.Context {
	return context.WithValue(ctx, hostIdKeyId, hostId)
}

func WithJobId(ctx context.Context, jobId string) context.Context {
	return context.WithValue(ctx, jobIdKeyId, jobId)
}

func WithPartId(ctx context.Context, partId string) context.Context {
	return context.WithValue(ctx, partIdKeyId, partId)
}

func LoggerFromContext(logger logrus.FieldLogger, ctx context.Context) logrus.FieldLogger {
	if ctx == nil {
		return logger
	}

	result := logger

	if ctxHostId, ok := ctx.Value(hostIdKeyId).(string); ok && ctxHostId != "" {
		result = result.WithField("host_id", ctxHostId)
	}

	if ctxJobId, ok := ctx.Value(jobIdKeyId).(string); ok && ctxJobId != "" {
		result = result.WithField("job_id", ctxJobId)
	}

	if ctxPartId, ok := ctx.Value(partIdKeyId).(string); ok && ctxPartId != "" {
		result = result.WithField("part_id", ctxPartId)
	}

	if ctxRequestId, ok := ctx.Value(requestIdKeyId).(string); ok && ctxRequestId != "" {
		result = result.WithField("request_id", ctxRequestId)
	}

	return result
}
