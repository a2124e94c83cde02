package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm/logger"
)

func TestNewZapGormLoggerThreshold(t *testing.T) {
	l := NewZapGormLogger(zap.NewNop(), logger.Warn, false, 0)
	require.Equal(t, defaultSlowQueryThreshold, l.SlowThreshold)

	l = NewZapGormLogger(zap.NewNop(), logger.Warn, false, 50*time.Millisecond)
	require.Equal(t, 50*time.Millisecond, l.SlowThreshold)
}

func TestZapGormLoggerLogMode(t *testing.T) {
	l := NewZapGormLogger(zap.NewNop(), logger.Warn, false, 0)

	silenced := l.LogMode(logger.Silent)
	require.Equal(t, logger.Silent, silenced.(*ZapGormLogger).LogLevel)
	require.Equal(t, logger.Warn, l.LogLevel)
}
