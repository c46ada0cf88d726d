// Package probe implements the SystemProbe capability: a pure read-only
// view of host resource usage, sourced from procfs/sysfs the way the
// teacher's collectors read them, plus golang.org/x/sys/unix for the
// two calls (load average, kernel version) the dependency graph already
// vets a syscall wrapper for.
package probe

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/fractalops/uatu/internal/model"
)

// maxListProcesses bounds how many rows ListProcesses can return even
// when a caller's thresholds are generous, matching spec.md §4.1's
// "callers MUST pass non-trivial thresholds... to avoid pathological
// sizes" with a hard backstop.
const maxListProcesses = 500

// Probe is the SystemProbe capability contract (spec.md §4.1).
type Probe interface {
	// Sample gathers all Snapshot fields in one call. Per-process read
	// failures are swallowed; the process is simply omitted.
	Sample(ctx context.Context) (model.Snapshot, error)

	// ListProcesses returns processes meeting the given thresholds.
	ListProcesses(ctx context.Context, filter ProcessFilter) ([]model.ProcessInfo, error)

	// ReadKernelPath returns the raw bytes at path, which must lie under
	// one of the probe's configured kernel pseudo-filesystem roots.
	ReadKernelPath(path string) ([]byte, error)
}

// ProcessFilter bounds a ListProcesses call. Per spec.md §4.1, callers
// must supply non-trivial thresholds; a zero-value filter matches
// everything and is the caller's responsibility to avoid.
type ProcessFilter struct {
	MinCPUPercent float64
	MinMemoryMB   float64
}

// LinuxProbe implements Probe against a real (or test-rooted) procfs/sysfs.
type LinuxProbe struct {
	procRoot string
	sysRoot  string

	// sampleInterval is the spacing between the two /proc/[pid]/stat
	// reads used to compute a CPU-percent delta, grounded on melisai's
	// ProcessCollector two-pass technique.
	sampleInterval time.Duration

	clockTicks float64
}

// NewLinuxProbe constructs a LinuxProbe rooted at procRoot/sysRoot
// (normally "/proc" and "/sys"; overridable for tests).
func NewLinuxProbe(procRoot, sysRoot string) *LinuxProbe {
	return &LinuxProbe{
		procRoot:       procRoot,
		sysRoot:        sysRoot,
		sampleInterval: 200 * time.Millisecond,
		clockTicks:     100,
	}
}

// WithSampleInterval overrides the two-pass CPU sampling interval
// (exported for tests that need a fast, deterministic Sample call).
func (p *LinuxProbe) WithSampleInterval(d time.Duration) *LinuxProbe {
	p.sampleInterval = d
	return p
}

type procSample struct {
	pid     int32
	comm    string
	state   string
	utime   uint64
	stime   uint64
	rssKB   int64
	running bool
}

func (p *LinuxProbe) Sample(ctx context.Context) (model.Snapshot, error) {
	totalMemKB := p.totalMemoryKB()

	pass1 := p.readAllPIDs()

	select {
	case <-time.After(p.sampleInterval):
	case <-ctx.Done():
		return model.Snapshot{}, ctx.Err()
	}

	pass2 := p.readAllPIDs()

	var procCount int
	var all []model.ProcessInfo
	for pid, s2 := range pass2 {
		procCount++

		cpuPct := 0.0
		if s1, ok := pass1[pid]; ok {
			delta := float64((s2.utime + s2.stime) - (s1.utime + s1.stime))
			cpuPct = delta / p.clockTicks / p.sampleInterval.Seconds() * 100
		}

		memMB := 0.0
		if s2.rssKB > 0 {
			memMB = float64(s2.rssKB) / 1024
		}

		all = append(all, model.ProcessInfo{
			PID:        pid,
			Name:       s2.comm,
			User:       "",
			CPUPercent: cpuPct,
			MemoryMB:   memMB,
			State:      s2.state,
		})
	}

	load1, load5, load15, err := p.loadAverage()
	if err != nil {
		load1, load5, load15 = 0, 0, 0
	}

	ports := p.listeningPorts()

	memUsedMB := 0.0
	memTotalMB := float64(totalMemKB) / 1024
	memPct := 0.0
	if availKB := p.availableMemoryKB(); totalMemKB > 0 {
		memUsedMB = float64(totalMemKB-availKB) / 1024
		memPct = float64(totalMemKB-availKB) / float64(totalMemKB) * 100
	}

	cpuTotal := 0.0
	if len(all) > 0 {
		for _, pi := range all {
			cpuTotal += pi.CPUPercent
		}
	}

	snap := model.NewSnapshot(
		time.Now(),
		cpuTotal,
		memPct,
		memUsedMB,
		memTotalMB,
		load1, load5, load15,
		procCount,
		all, all,
		ports,
	)
	return snap, nil
}

func (p *LinuxProbe) ListProcesses(ctx context.Context, filter ProcessFilter) ([]model.ProcessInfo, error) {
	snap, err := p.Sample(ctx)
	if err != nil {
		return nil, err
	}

	merged := make(map[int32]model.ProcessInfo)
	for _, pi := range snap.TopCPUProcesses {
		merged[pi.PID] = pi
	}
	for _, pi := range snap.TopMemoryProcesses {
		merged[pi.PID] = pi
	}

	var out []model.ProcessInfo
	for _, pi := range merged {
		if pi.CPUPercent < filter.MinCPUPercent || pi.MemoryMB < filter.MinMemoryMB {
			continue
		}
		out = append(out, pi)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CPUPercent > out[j].CPUPercent })
	if len(out) > maxListProcesses {
		out = out[:maxListProcesses]
	}
	return out, nil
}

func (p *LinuxProbe) ReadKernelPath(path string) ([]byte, error) {
	if !strings.HasPrefix(path, p.procRoot) && !strings.HasPrefix(path, p.sysRoot) {
		return nil, fmt.Errorf("probe: path %q is outside the configured kernel pseudo-filesystem roots", path)
	}
	return os.ReadFile(path)
}

func (p *LinuxProbe) readAllPIDs() map[int32]procSample {
	entries, err := os.ReadDir(p.procRoot)
	if err != nil {
		return nil
	}

	out := make(map[int32]procSample, len(entries))
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		s, err := p.readOne(pid)
		if err != nil {
			continue
		}
		out[int32(pid)] = s
	}
	return out
}

func (p *LinuxProbe) readOne(pid int) (procSample, error) {
	raw, err := os.ReadFile(filepath.Join(p.procRoot, strconv.Itoa(pid), "stat"))
	if err != nil {
		return procSample{}, err
	}
	line := string(raw)
	open := strings.Index(line, "(")
	close := strings.LastIndex(line, ")")
	if open < 0 || close < 0 || close < open {
		return procSample{}, fmt.Errorf("probe: malformed stat for pid %d", pid)
	}
	comm := line[open+1 : close]
	fields := strings.Fields(line[close+2:])

	s := procSample{pid: int32(pid), comm: comm}
	if len(fields) > 0 {
		s.state = fields[0]
	}
	if len(fields) > 12 {
		s.utime, _ = strconv.ParseUint(fields[11], 10, 64)
		s.stime, _ = strconv.ParseUint(fields[12], 10, 64)
	}
	if len(fields) > 21 {
		rssPages, _ := strconv.ParseInt(fields[21], 10, 64)
		s.rssKB = rssPages * 4 // 4KB pages
	}
	return s, nil
}

func (p *LinuxProbe) totalMemoryKB() int64 { return p.meminfoField("MemTotal:") }
func (p *LinuxProbe) availableMemoryKB() int64 {
	if v := p.meminfoField("MemAvailable:"); v > 0 {
		return v
	}
	return p.meminfoField("MemFree:")
}

func (p *LinuxProbe) meminfoField(key string) int64 {
	data, err := os.ReadFile(filepath.Join(p.procRoot, "meminfo"))
	if err != nil {
		return 0
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, key) {
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				v, _ := strconv.ParseInt(fields[1], 10, 64)
				return v
			}
		}
	}
	return 0
}

// loadAverage reads the 1/5/15-minute load averages via sysinfo(2)
// rather than parsing /proc/loadavg text, per SPEC_FULL.md's DOMAIN
// STACK wiring of golang.org/x/sys.
func (p *LinuxProbe) loadAverage() (load1, load5, load15 float64, err error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, 0, 0, fmt.Errorf("probe: sysinfo: %w", err)
	}
	// Linux kernel reports loads scaled by 1<<16 (SI_LOAD_SHIFT).
	const scale = 1 << 16
	return float64(info.Loads[0]) / scale,
		float64(info.Loads[1]) / scale,
		float64(info.Loads[2]) / scale,
		nil
}

// KernelVersion returns the kernel release string via uname(2).
func (p *LinuxProbe) KernelVersion() (string, error) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return "", fmt.Errorf("probe: uname: %w", err)
	}
	return charsToString(uts.Release[:]), nil
}

func charsToString(b []byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}

// listeningPorts scans /proc/net/{tcp,tcp6} for sockets in LISTEN state
// (st == 0A in the kernel's hex encoding).
func (p *LinuxProbe) listeningPorts() []uint16 {
	var ports []uint16
	for _, f := range []string{"net/tcp", "net/tcp6"} {
		ports = append(ports, p.parseListenPorts(filepath.Join(p.procRoot, f))...)
	}
	return ports
}

func (p *LinuxProbe) parseListenPorts(path string) []uint16 {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var ports []uint16
	scanner := bufio.NewScanner(f)
	scanner.Scan() // header
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 {
			continue
		}
		if fields[3] != "0A" { // TCP_LISTEN
			continue
		}
		localAddr := fields[1]
		parts := strings.Split(localAddr, ":")
		if len(parts) != 2 {
			continue
		}
		portNum, err := strconv.ParseUint(parts[1], 16, 16)
		if err != nil {
			continue
		}
		ports = append(ports, uint16(portNum))
	}
	return ports
}
