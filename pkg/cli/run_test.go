package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_Arguments(t *testing.T) {
	captureOutput(t)

	assert.EqualError(t, runRun(nil), "at least one package is required")
	assert.Error(t, runRun([]string{"-bogus"}))
}

func TestRun_InvalidConfig(t *testing.T) {
	captureOutput(t)
	isolateEnv(t)
	t.Setenv("AXLE_LOG_FORMAT", "xml")

	err := runRun([]string{"x.axp"})
	assert.ErrorContains(t, err, "configuration validation failed")
}

func TestRun_ReportsLoadFailures(t *testing.T) {
	out := captureOutput(t)
	isolateEnv(t)
	dir := t.TempDir()

	// Not a shared object, so the module cannot be opened
	pkg := writePackage(t, dir, "fake", "1.0.0", []byte("not an elf file"))

	err := runRun([]string{pkg})

	require.Error(t, err)
	assert.ErrorContains(t, err, "failed to open plugin module")
	assert.Contains(t, out.String(), "FAIL "+pkg)
}
