// ===================================
// File: internal/logger/logger_test.go
// ===================================
package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedLogger() (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return &Logger{Logger: zap.New(core)}, logs
}

func TestWithUserAddsUserField(t *testing.T) {
	log, logs := newObservedLogger()
	log.WithUser(42).Info("flow started")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(42), entries[0].ContextMap()["user_id"])
}

func TestWithOperationAddsCorrelationID(t *testing.T) {
	log, logs := newObservedLogger()
	log.WithOperation("execute_trade").Info("step one")
	log.WithOperation("execute_trade").Info("step two")

	entries := logs.All()
	require.Len(t, entries, 2)
	first := entries[0].ContextMap()
	second := entries[1].ContextMap()
	assert.Equal(t, "execute_trade", first["operation"])
	assert.NotEmpty(t, first["correlation_id"])
	// Каждый вызов операции получает собственный correlation id
	assert.NotEqual(t, first["correlation_id"], second["correlation_id"])
}

func TestWithTransactionAddsHash(t *testing.T) {
	log, logs := newObservedLogger()
	log.WithTransaction("5Signature").Info("trade executed")

	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "5Signature", fields["tx_hash"])
	assert.NotEmpty(t, fields["tx_time"])
}

func TestLogErrorAttachesErrorField(t *testing.T) {
	log, logs := newObservedLogger()
	log.LogError("submission failed", errors.New("rpc timeout"),
		zap.String("stage", "submit"))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, "rpc timeout", fields["error"])
	assert.Equal(t, "submit", fields["stage"])
}

func TestWithComponentAddsComponentField(t *testing.T) {
	log, logs := newObservedLogger()
	log.WithComponent("wallet").Info("provisioned")

	assert.Equal(t, "wallet", logs.All()[0].ContextMap()["component"])
}
