package gateway

import (
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	fakeBinOnce sync.Once
	fakeBinPath string
	fakeBinErr  error
)

// buildFakeServer builds the supervisor's fake llama-server once per test
// binary and returns its path.
func buildFakeServer(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("short mode: skipping subprocess test")
	}
	fakeBinOnce.Do(func() {
		dir, err := os.MkdirTemp("", "llamagate-gw-fake-")
		if err != nil {
			fakeBinErr = err
			return
		}
		fakeBinPath = filepath.Join(dir, "fake_llama_server")
		cmd := exec.Command("go", "build", "-o", fakeBinPath, "../supervisor/testdata/fake_llama_server.go")
		cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
		if out, err := cmd.CombinedOutput(); err != nil {
			fakeBinErr = err
			fakeBinPath = string(out)
		}
	})
	require.NoError(t, fakeBinErr, "build fake server: %s", fakeBinPath)
	return fakeBinPath
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}
