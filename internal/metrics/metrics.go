// Package metrics samples host and process health figures used by session
// monitors to classify log lines.
package metrics

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// topProcessCount bounds the per-process memory table in a snapshot.
const topProcessCount = 5

// ProcessMemory is one row of the top-memory table.
type ProcessMemory struct {
	Name    string
	PID     int32
	Percent float64
}

// Snapshot is one sampling of system health. Load5/Load15 are nil on
// platforms without load averages.
type Snapshot struct {
	RAMPercent   float64
	Load1        float64
	Load5        *float64
	Load15       *float64
	CPUPercent   float64
	ProcessRSS   uint64
	TopProcesses []ProcessMemory
}

// Report renders the consolidated multi-line stats block written on nominal
// monitor iterations.
func (s *Snapshot) Report() string {
	var b strings.Builder
	fmt.Fprintf(&b, "SYSTEM STATS:\n")
	fmt.Fprintf(&b, "  RAM: %.1f%%\n", s.RAMPercent)
	fmt.Fprintf(&b, "  Load Average: %.2f (1m), %s (5m), %s (15m)\n",
		s.Load1, formatLoad(s.Load5), formatLoad(s.Load15))
	fmt.Fprintf(&b, "  Process: %.2f MB, CPU: %.1f%%",
		float64(s.ProcessRSS)/1024/1024, s.CPUPercent)

	if len(s.TopProcesses) > 0 {
		b.WriteString("\n  Top Memory Usage:")
		for i, p := range s.TopProcesses {
			fmt.Fprintf(&b, "\n    %d. %s (PID: %d): %.2f%%", i+1, p.Name, p.PID, p.Percent)
		}
	}
	return b.String()
}

func formatLoad(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.2f", *v)
}

// Sampler produces snapshots. Monitors depend on this interface so tests can
// substitute deterministic values.
type Sampler interface {
	Sample() (*Snapshot, error)
}

// SystemSampler reads live figures through gopsutil.
type SystemSampler struct{}

func NewSystemSampler() *SystemSampler {
	return &SystemSampler{}
}

func (ss *SystemSampler) Sample() (*Snapshot, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return nil, fmt.Errorf("reading virtual memory: %w", err)
	}

	snap := &Snapshot{
		RAMPercent: vm.UsedPercent,
	}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("opening own process: %w", err)
	}
	if mi, err := proc.MemoryInfo(); err == nil && mi != nil {
		snap.ProcessRSS = mi.RSS
	}
	if cp, err := proc.CPUPercent(); err == nil {
		snap.CPUPercent = cp
	}

	if avg, err := load.Avg(); err == nil {
		snap.Load1 = avg.Load1
		l5, l15 := avg.Load5, avg.Load15
		snap.Load5 = &l5
		snap.Load15 = &l15
	} else {
		// No load averages on this platform; fall back to the process CPU
		// figure so load-based thresholds still see something meaningful.
		snap.Load1 = snap.CPUPercent
	}

	snap.TopProcesses = topMemoryProcesses(vm.Total)
	return snap, nil
}

// topMemoryProcesses lists the heaviest resident processes. Per-process
// failures (races with exiting processes, permission limits) are skipped.
func topMemoryProcesses(totalRAM uint64) []ProcessMemory {
	if totalRAM == 0 {
		return nil
	}
	procs, err := process.Processes()
	if err != nil {
		return nil
	}

	rows := make([]ProcessMemory, 0, len(procs))
	for _, p := range procs {
		mi, err := p.MemoryInfo()
		if err != nil || mi == nil {
			continue
		}
		name, err := p.Name()
		if err != nil || name == "" {
			continue
		}
		rows = append(rows, ProcessMemory{
			Name:    name,
			PID:     p.Pid,
			Percent: float64(mi.RSS) / float64(totalRAM) * 100,
		})
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Percent > rows[j].Percent })
	if len(rows) > topProcessCount {
		rows = rows[:topProcessCount]
	}
	return rows
}
