// Package jlog provides a jettison backed implementation of engine.Logger.
package jlog

import (
	"context"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"github.com/luno/jettison/log"

	"github.com/openbp/engine"
)

func New() *logger {
	return &logger{}
}

type logger struct{}

func (l logger) Debug(ctx context.Context, msg string, meta engine.MKV) {
	if id := engine.TraceIDFromContext(ctx); id != "" {
		log.Debug(ctx, msg, j.MKS(meta), j.KV("traceId", id))
		return
	}
	log.Debug(ctx, msg, j.MKS(meta))
}

func (l logger) Error(ctx context.Context, err error) {
	if id := engine.TraceIDFromContext(ctx); id != "" {
		err = errors.Wrap(err, "", j.KV("traceId", id))
	} else {
		err = errors.Wrap(err, "")
	}
	log.Error(ctx, err)
}

var _ engine.Logger = (*logger)(nil)
