package jlog_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/log"
	"github.com/stretchr/testify/require"

	"github.com/openbp/engine"
	"github.com/openbp/engine/adapters/jlog"
)

func TestDebug(t *testing.T) {
	buf := bytes.NewBuffer([]byte{})
	jLogger := log.NewCmdLogger(buf, true)
	log.SetLoggerForTesting(t, jLogger)

	logger := jlog.New()
	ctx := context.Background()
	logger.Debug(ctx, "test message", map[string]string{"testKey": "testValue"})

	require.Contains(t, buf.String(), "test message")
	require.Contains(t, buf.String(), "testValue")
}

func TestDebugTraceID(t *testing.T) {
	buf := bytes.NewBuffer([]byte{})
	jLogger := log.NewCmdLogger(buf, true)
	log.SetLoggerForTesting(t, jLogger)

	logger := jlog.New()
	ctx := engine.ContextWithTraceID(context.Background(), "trace-1")
	logger.Debug(ctx, "test message", nil)

	require.Contains(t, buf.String(), "trace-1")
}

func TestError(t *testing.T) {
	buf := bytes.NewBuffer([]byte{})
	jLogger := log.NewCmdLogger(buf, true)
	log.SetLoggerForTesting(t, jLogger)

	logger := jlog.New()
	ctx := context.Background()
	logger.Error(ctx, errors.New("test error"))

	require.Contains(t, buf.String(), "test error")
}
