package common

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCrashFile(t *testing.T) {
	dir := t.TempDir()
	InstallCrashHandler(dir)

	path := WriteCrashFile("boom", GetStackTrace())
	require.NotEmpty(t, path)
	assert.True(t, strings.HasPrefix(path, dir))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	report := string(data)
	assert.Contains(t, report, "PRICEWATCH CRASH REPORT")
	assert.Contains(t, report, "=== PANIC VALUE ===\nboom")
	assert.Contains(t, report, "TestWriteCrashFile")
}
