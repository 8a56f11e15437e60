package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestGetDefaultLoggerIsSingleton(t *testing.T) {
	a := GetDefaultLogger()
	b := GetDefaultLogger()
	require.Same(t, a, b)
}

func TestCreateLoggerAsLocalFileWrites(t *testing.T) {
	dir := t.TempDir()
	l, flush, err := CreateLoggerAsLocalFile(dir+"/basrv.log", zapcore.InfoLevel)
	require.NoError(t, err)
	l.Infof("hello %s", "world")
	require.NoError(t, flush())
}

func TestLevelFromEnvDefaultsToInfo(t *testing.T) {
	require.Equal(t, zapcore.InfoLevel, levelFromEnv())
}
