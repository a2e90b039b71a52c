//go:build darwin || freebsd || linux || netbsd

package cli

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const greeterSource = `
#include <stdint.h>
#include <string.h>

typedef struct axle_payload {
    const uint8_t *data;
    uint64_t       len;
    uint8_t       *out;
    uint64_t       out_cap;
    uint64_t       out_len;
} axle_payload;

int32_t axle_init(void) { return 0; }

int32_t greet(axle_payload *p) {
    const char *msg = "hi ";
    uint64_t n = 0;
    for (; msg[n] && n < p->out_cap; n++) p->out[n] = (uint8_t)msg[n];
    for (uint64_t i = 0; i < p->len && n < p->out_cap; i++, n++) p->out[n] = p->data[i];
    p->out_len = n;
    return 0;
}
`

func TestRun_InvokesHook(t *testing.T) {
	cc, err := exec.LookPath("cc")
	if err != nil {
		t.Skip("no C compiler available")
	}

	build := t.TempDir()
	src := filepath.Join(build, "greeter.c")
	obj := filepath.Join(build, "greeter.so")
	require.NoError(t, os.WriteFile(src, []byte(greeterSource), 0o644))
	if out, err := exec.Command(cc, "-shared", "-fPIC", "-o", obj, src).CombinedOutput(); err != nil {
		t.Skipf("failed to compile plugin: %v\n%s", err, out)
	}
	data, err := os.ReadFile(obj)
	require.NoError(t, err)

	out := captureOutput(t)
	isolateEnv(t)
	pkg := writePackage(t, t.TempDir(), "greeter", "0.1.0", data)

	require.NoError(t, runRun([]string{"-hook", "greet", "-payload", "axle", pkg}))

	output := out.String()
	assert.Contains(t, output, "loaded greeter v0.1.0 (initialized)")
	assert.Contains(t, output, `greeter.greet -> 0`)
	assert.Contains(t, output, `"hi axle"`)
}
