package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"syscall"
	"testing"
	"time"
)

// findFreePort picks an available TCP port on localhost.
func findFreePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func projectRoot(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	// this file: <root>/cmd/llamagate/blackbox_test.go
	return filepath.Dir(filepath.Dir(filepath.Dir(thisFile)))
}

// buildBinaries builds llamagate and the fake llama-server into a temp dir.
func buildBinaries(t *testing.T) (gate, fake string) {
	t.Helper()
	if testing.Short() {
		t.Skip("short mode: skipping blackbox test")
	}
	root := projectRoot(t)
	out := t.TempDir()
	gate = filepath.Join(out, "llamagate")
	fake = filepath.Join(out, "fake_llama_server")
	for _, b := range []struct{ out, pkg string }{
		{gate, "./cmd/llamagate"},
		{fake, "./internal/supervisor/testdata/fake_llama_server.go"},
	} {
		cmd := exec.Command("go", "build", "-o", b.out, b.pkg)
		cmd.Dir = root
		cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
		if o, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("go build %s failed: %v\n%s", b.pkg, err, o)
		}
	}
	return gate, fake
}

func gatewayEnv(fake string, gwPort, llamaPort int, extra ...string) []string {
	env := append(os.Environ(),
		"LLAMA_SERVER_BIN="+fake,
		"LLAMA_HOST=127.0.0.1",
		fmt.Sprintf("LLAMA_PORT=%d", llamaPort),
		fmt.Sprintf("PORT=%d", gwPort),
		"STARTUP_TIMEOUT=10",
		"LOG_LEVEL=debug",
	)
	return append(env, extra...)
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if !errors.As(err, &ee) {
		t.Fatalf("unexpected wait error: %v", err)
	}
	return ee.ExitCode()
}

func TestBlackbox_MissingModelExitsNonZero(t *testing.T) {
	gate, fake := buildBinaries(t)
	cmd := exec.Command(gate)
	cmd.Env = gatewayEnv(fake, findFreePort(t), findFreePort(t), "MODEL_NAME=")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if code := exitCode(t, cmd.Run()); code == 0 {
		t.Fatalf("expected non-zero exit, stderr=%s", stderr.String())
	}
	if !bytes.Contains(stderr.Bytes(), []byte("model")) {
		t.Fatalf("stderr should mention the model: %s", stderr.String())
	}
}

func TestBlackbox_ChildCrashExitsNonZero(t *testing.T) {
	gate, fake := buildBinaries(t)
	cmd := exec.Command(gate)
	cmd.Env = gatewayEnv(fake, findFreePort(t), findFreePort(t), "MODEL_NAME=org/m-GGUF", "FAKE_LLAMA_MODE=crash")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if code := exitCode(t, cmd.Run()); code == 0 {
		t.Fatalf("expected non-zero exit, stderr=%s", stderr.String())
	}
	if !bytes.Contains(stderr.Bytes(), []byte("failed to load model")) {
		t.Fatalf("child output should be logged: %s", stderr.String())
	}
}

func TestBlackbox_Flow(t *testing.T) {
	gate, fake := buildBinaries(t)
	gwPort := findFreePort(t)
	base := fmt.Sprintf("http://127.0.0.1:%d", gwPort)

	cmd := exec.Command(gate)
	cmd.Env = gatewayEnv(fake, gwPort, findFreePort(t), "MODEL_NAME=org/m-GGUF", "FAKE_LLAMA_MODE=")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = cmd.Process.Kill() })

	deadline := time.Now().Add(15 * time.Second)
	for {
		resp, err := http.Get(base + "/ping")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("gateway did not start in time")
		}
		time.Sleep(50 * time.Millisecond)
	}

	resp, err := http.Post(base+"/v1/completions", "application/json", bytes.NewBufferString(`{"prompt":"hi"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/v1/completions %d %s", resp.StatusCode, body)
	}
	var echo struct {
		Path string `json:"path"`
		Body string `json:"body"`
	}
	if err := json.Unmarshal(body, &echo); err != nil {
		t.Fatalf("json: %v body=%s", err, body)
	}
	if echo.Path != "/v1/completions" || echo.Body != `{"prompt":"hi"}` {
		t.Fatalf("unexpected echo: %+v", echo)
	}

	resp, err = http.Get(base + "/ping")
	if err != nil {
		t.Fatalf("ping: %v", err)
	}
	var snap struct {
		Status     string `json:"status"`
		Statistics struct {
			RequestsProcessed int `json:"requests_processed"`
		} `json:"statistics"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	_ = resp.Body.Close()
	if snap.Status != "healthy" || snap.Statistics.RequestsProcessed != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		t.Fatalf("sigterm: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case err := <-done:
		if code := exitCode(t, err); code != 0 {
			t.Fatalf("expected clean exit, got %d", code)
		}
	case <-time.After(20 * time.Second):
		t.Fatalf("gateway did not exit after SIGTERM")
	}
}
