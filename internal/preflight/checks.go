package preflight

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/open-access-policies/policy-crew/internal/corpus"
)

// MinDiskSpaceBytes is the free-space floor below which the disk check
// warns (100MB).
const MinDiskSpaceBytes = 100 * 1024 * 1024

// MinFileDescriptors is the descriptor-limit floor below which the
// limit check warns. Parallel tuning trials hold sqlite handles, bleve
// readers, and HTTP connections at once.
const MinFileDescriptors = 1024

// probeFileName is created and removed again by the writable checks.
const probeFileName = ".preflight-probe"

func (r *Runner) checkConfig() Check {
	check := Check{Name: "config", Required: true}

	if err := r.cfg.Validate(); err != nil {
		check.Status = StatusFail
		check.Message = err.Error()
		return check
	}

	check.Status = StatusPass
	check.Message = "loaded and validated"
	check.Details = "fingerprint " + r.cfg.ShortFingerprint()
	return check
}

func (r *Runner) checkKB(ctx context.Context) Check {
	check := Check{Name: "kb_dir", Required: true}
	dir := r.cfg.Paths.KBDir

	info, err := os.Stat(dir)
	if err != nil {
		check.Status = StatusFail
		check.Message = fmt.Sprintf("%s does not exist", dir)
		check.Details = "Create the directory or point paths.kb_dir at the knowledge base"
		return check
	}
	if !info.IsDir() {
		check.Status = StatusFail
		check.Message = fmt.Sprintf("%s is not a directory", dir)
		return check
	}

	docs, err := corpus.NewLoader(dir, r.cfg.Loader, r.logger).Load(ctx)
	if err != nil {
		check.Status = StatusFail
		check.Message = fmt.Sprintf("cannot load corpus: %v", err)
		return check
	}
	if len(docs) == 0 {
		check.Status = StatusWarn
		check.Message = "no markdown files matched the loader globs"
		check.Details = fmt.Sprintf("globs: %v", r.cfg.Loader.Globs)
		return check
	}

	check.Status = StatusPass
	check.Message = fmt.Sprintf("%d markdown files", len(docs))
	return check
}

func (r *Runner) checkWritable(name, dir string) Check {
	check := Check{Name: name, Required: true}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		check.Status = StatusFail
		check.Message = fmt.Sprintf("cannot create %s: %v", dir, err)
		return check
	}

	probe := filepath.Join(dir, probeFileName)
	f, err := os.Create(probe)
	if err != nil {
		check.Status = StatusFail
		check.Message = fmt.Sprintf("cannot write in %s: %v", dir, err)
		return check
	}
	_ = f.Close()
	_ = os.Remove(probe)

	check.Status = StatusPass
	check.Message = "writable"
	check.Details = dir
	return check
}

func (r *Runner) checkDiskSpace(path string) Check {
	check := Check{Name: "disk_space", Required: false}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		check.Status = StatusWarn
		check.Message = fmt.Sprintf("cannot check disk space: %v", err)
		return check
	}

	availableBytes := stat.Bavail * uint64(stat.Bsize)
	check.Message = fmt.Sprintf("%s free (minimum: 100 MB)", formatBytes(availableBytes))
	if availableBytes < MinDiskSpaceBytes {
		check.Status = StatusWarn
		check.Details = "Free up space before indexing a large corpus"
		return check
	}

	check.Status = StatusPass
	return check
}

func (r *Runner) checkFileDescriptors() Check {
	check := Check{Name: "file_descriptors", Required: false}

	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		check.Status = StatusWarn
		check.Message = fmt.Sprintf("cannot check file descriptor limit: %v", err)
		return check
	}

	check.Message = fmt.Sprintf("%d (minimum: %d)", rLimit.Cur, MinFileDescriptors)
	if rLimit.Cur < MinFileDescriptors {
		check.Status = StatusWarn
		check.Details = "Run 'ulimit -n 10240' to increase the limit"
		return check
	}

	check.Status = StatusPass
	return check
}

// formatBytes formats bytes as a human-readable string.
func formatBytes(bytes uint64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
		TB = 1024 * GB
	)

	switch {
	case bytes >= TB:
		return fmt.Sprintf("%.1f TB", float64(bytes)/TB)
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}
