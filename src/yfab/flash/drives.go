package flash

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// DefaultSysRoot is the sysfs mount point
const DefaultSysRoot = "/sys"

// Drive is a removable block device candidate for flashing
type Drive struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
	Model     string `json:"model,omitempty"`
	Transport string `json:"transport"`
}

func (d Drive) String() string {
	s := fmt.Sprintf("%s %s", d.Name, humanSize(d.SizeBytes))
	if d.Model != "" {
		s += " " + d.Model
	}
	return s + " (" + d.Transport + ")"
}

// HumanSize returns the capacity in binary units
func (d Drive) HumanSize() string {
	return humanSize(d.SizeBytes)
}

// ScanDrives lists the USB and MMC disks under <sysRoot>/block. Partitions
// and the boot and RPMB areas of eMMC devices are not listed.
func ScanDrives(sysRoot string) ([]Drive, error) {
	if sysRoot == "" {
		sysRoot = DefaultSysRoot
	}
	blockDir := filepath.Join(sysRoot, "block")

	entries, err := os.ReadDir(blockDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", blockDir, err)
	}

	var drives []Drive
	for _, entry := range entries {
		name := entry.Name()
		link, err := os.Readlink(filepath.Join(blockDir, name))
		if err != nil {
			link = ""
		}

		var transport string
		switch {
		case strings.Contains(link, "/usb"):
			transport = "usb"
		case strings.HasPrefix(name, "mmcblk") && !strings.Contains(name, "boot") && !strings.Contains(name, "rpmb"):
			transport = "mmc"
		default:
			continue
		}

		drives = append(drives, Drive{
			Name:      name,
			Path:      "/dev/" + name,
			SizeBytes: readSectors(filepath.Join(blockDir, name, "size")) * 512,
			Model:     readTrimmed(filepath.Join(blockDir, name, "device", "model")),
			Transport: transport,
		})
	}

	sort.Slice(drives, func(i, j int) bool { return drives[i].Name < drives[j].Name })
	log.Debug("Scanned drives", "count", len(drives))
	return drives, nil
}

func readSectors(path string) int64 {
	n, err := strconv.ParseInt(readTrimmed(path), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func readTrimmed(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func humanSize(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%dB", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%c", float64(b)/float64(div), "KMGTPE"[exp])
}
