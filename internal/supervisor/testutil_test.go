package supervisor

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var (
	fakeBinOnce sync.Once
	fakeBinPath string
	fakeBinErr  error
)

// buildFakeServer builds testdata/fake_llama_server.go once per test binary
// and returns its path.
func buildFakeServer(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("short mode: skipping subprocess test")
	}
	fakeBinOnce.Do(func() {
		dir, err := os.MkdirTemp("", "llamagate-fake-")
		if err != nil {
			fakeBinErr = err
			return
		}
		fakeBinPath = filepath.Join(dir, "fake_llama_server")
		cmd := exec.Command("go", "build", "-o", fakeBinPath, "./testdata/fake_llama_server.go")
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

// countingProber returns a fixed answer and counts calls.
type countingProber struct {
	alive bool
	calls atomic.Int64
}

func (p *countingProber) IsAlive(ctx context.Context) bool {
	p.calls.Add(1)
	return p.alive
}

// httpProber hits /health on the child, mirroring the production probe.
type httpProber struct{ url string }

func (p httpProber) IsAlive(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func testConfig(bin string, port int) Config {
	cfg := DefaultConfig()
	cfg.Model = "org/model-GGUF"
	cfg.Bin = bin
	cfg.Host = "127.0.0.1"
	cfg.Port = port
	cfg.PollInterval = 50 * time.Millisecond
	cfg.StartupTimeout = 10 * time.Second
	cfg.StopTimeout = 2 * time.Second
	return cfg
}

func healthURL(port int) string {
	return "http://127.0.0.1:" + strconv.Itoa(port) + "/health"
}
