package cli

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"

	"github.com/platinummonkey/axle/pkg/archive/archivetest"
)

// captureOutput redirects command output into a buffer for the test
func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()

	buf := &bytes.Buffer{}
	oldOut, oldErr := stdout, stderr
	stdout, stderr = buf, io.Discard
	t.Cleanup(func() {
		stdout, stderr = oldOut, oldErr
	})
	return buf
}

// isolateEnv points the host at temporary directories and keeps ambient
// AXLE_* settings from leaking into the test
func isolateEnv(t *testing.T) {
	t.Helper()

	t.Setenv("AXLE_WORK_DIR", t.TempDir())
	t.Setenv("AXLE_JOURNAL_DSN", "")
	t.Setenv("AXLE_OTEL_ENABLED", "false")
	t.Setenv("AXLE_LOG_LEVEL", "error")
	t.Setenv("AXLE_LOG_FORMAT", "text")
}

func writePackage(t *testing.T, dir, name, version string, obj []byte) string {
	t.Helper()
	return archivetest.Write(t, filepath.Join(dir, name+".axp"), map[string][]byte{
		"metadata.toml": archivetest.Descriptor(name, version, "lib/"+name+".so"),
		"lib/" + name + ".so": obj,
	})
}
