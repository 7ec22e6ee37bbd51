package health

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"llamagate/pkg/types"
)

// GPUQuerier reports GPU memory usage. A nil result with a nil error is
// not expected; callers treat any error as "no GPU".
type GPUQuerier interface {
	QueryGPU(ctx context.Context) (*types.GPUStats, error)
}

// NvidiaSMI queries GPU memory via the nvidia-smi CLI.
type NvidiaSMI struct {
	Bin     string
	Timeout time.Duration
}

// NewNvidiaSMI returns a querier using nvidia-smi from PATH with a 5s timeout.
func NewNvidiaSMI() *NvidiaSMI { return &NvidiaSMI{Bin: "nvidia-smi", Timeout: 5 * time.Second} }

// QueryGPU runs nvidia-smi and sums memory.used/memory.total across devices.
func (n *NvidiaSMI) QueryGPU(ctx context.Context) (*types.GPUStats, error) {
	bin := n.Bin
	if bin == "" {
		bin = "nvidia-smi"
	}
	timeout := n.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, bin,
		"--query-gpu=memory.used,memory.total",
		"--format=csv,nounits,noheader").Output()
	if err != nil {
		return nil, fmt.Errorf("nvidia-smi: %w", err)
	}
	return parseNvidiaMemoryCSV(out)
}

// parseNvidiaMemoryCSV parses "used, total" lines in MiB.
func parseNvidiaMemoryCSV(out []byte) (*types.GPUStats, error) {
	r := csv.NewReader(bytes.NewReader(out))
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	var used, total float64
	devices := 0
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse nvidia-smi output: %w", err)
		}
		if len(rec) < 2 {
			return nil, fmt.Errorf("parse nvidia-smi output: want 2 fields, got %d", len(rec))
		}
		u, err := strconv.ParseFloat(strings.TrimSpace(rec[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("parse memory.used %q: %w", rec[0], err)
		}
		t, err := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("parse memory.total %q: %w", rec[1], err)
		}
		used += u
		total += t
		devices++
	}
	if devices == 0 {
		return nil, errors.New("nvidia-smi reported no devices")
	}
	pct := 0.0
	if total > 0 {
		pct = used / total * 100
	}
	return &types.GPUStats{UsedMB: round2(used), TotalMB: round2(total), UsagePercent: round2(pct)}, nil
}
