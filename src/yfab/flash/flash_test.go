package flash

import (
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"

	"github.com/bitswalk/yfab/src/common/errors"
	"github.com/bitswalk/yfab/src/yfab/process/processtest"
)

// ===== Test Helpers =====

func writeImage(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0644))
	return path
}

func gzipBytes(t *testing.T, content []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func xzBytes(t *testing.T, content []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	require.NoError(t, err)
	_, err = w.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func newOrchestrator(runner *processtest.Runner, cfg Config, partitions ...string) (*Orchestrator, *[]State) {
	o := NewOrchestrator(runner, cfg)
	o.glob = func(pattern string) ([]string, error) {
		return partitions, nil
	}
	var states []State
	o.OnState = func(s State) { states = append(states, s) }
	return o, &states
}

// ===== Plan Tests =====

func TestPlan(t *testing.T) {
	tests := []struct {
		name       string
		image      string
		blockSize  string
		sudo       bool
		wantName   string
		wantArgs   []string
		wantFormat string
	}{
		{
			name:     "raw image",
			image:    "/img/core.wic",
			wantName: "dd",
			wantArgs: []string{"if=/img/core.wic", "of=/dev/sdb", "bs=4M", "status=progress", "conv=fsync"},
		},
		{
			name:       "bzip2 image reads stdin",
			image:      "/img/core.wic.bz2",
			wantName:   "dd",
			wantArgs:   []string{"of=/dev/sdb", "bs=4M", "status=progress", "conv=fsync"},
			wantFormat: "bzip2",
		},
		{
			name:       "xz image with sudo",
			image:      "/img/core.wic.xz",
			blockSize:  "1M",
			sudo:       true,
			wantName:   "sudo",
			wantArgs:   []string{"dd", "of=/dev/sdb", "bs=1M", "status=progress", "conv=fsync"},
			wantFormat: "xz",
		},
		{
			name:       "gzip image",
			image:      "/img/core.wic.gz",
			wantName:   "dd",
			wantArgs:   []string{"of=/dev/sdb", "bs=4M", "status=progress", "conv=fsync"},
			wantFormat: "gzip",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Plan(tt.image, "/dev/sdb", tt.blockSize, tt.sudo)

			assert.Equal(t, tt.wantName, p.Copy.Name)
			assert.Equal(t, tt.wantArgs, p.Copy.Args)
			if tt.wantFormat == "" {
				assert.Nil(t, p.Decompress)
			} else {
				require.NotNil(t, p.Decompress)
				assert.Equal(t, tt.wantFormat, p.Decompress.Format)
			}
		})
	}
}

// ===== Flash Tests =====

func TestFlash_UnmountsBeforeCopy(t *testing.T) {
	image := writeImage(t, "core.wic", []byte("raw image"))
	runner := processtest.New().
		On("umount /dev/sdb1", processtest.Fail(32, "umount: /dev/sdb1: not mounted")).
		On("dd", processtest.OK("500000 bytes (500 kB, 488 KiB) copied, 1 s, 500 kB/s", "9+0 records in", "1000000 bytes (1.0 MB) copied"))
	o, states := newOrchestrator(runner, Config{}, "/dev/sdb", "/dev/sdb1")
	sink := &processtest.Sink{}

	res, err := o.Flash(context.Background(), Request{Image: image, Device: "/dev/sdb", SizeBytes: 1000000}, sink)
	require.NoError(t, err)
	assert.True(t, res.Succeeded)

	assert.Equal(t, []string{
		"umount /dev/sdb",
		"umount /dev/sdb1",
		"dd if=" + image + " of=/dev/sdb bs=4M status=progress conv=fsync",
	}, runner.Lines())
	assert.Equal(t, []State{StateUnmounting, StateCopying, StateDone}, *states)

	assert.Equal(t, []int{50, 100, 100}, sink.Percents)
	assert.Len(t, sink.Overwrites, 2)
	assert.Contains(t, sink.Appended, "9+0 records in")
}

func TestFlash_Sudo(t *testing.T) {
	image := writeImage(t, "core.wic", []byte("raw"))
	runner := processtest.New()
	o, _ := newOrchestrator(runner, Config{Sudo: true, BlockSize: "8M"}, "/dev/mmcblk0")

	_, err := o.Flash(context.Background(), Request{Image: image, Device: "/dev/mmcblk0"}, nil)
	require.NoError(t, err)

	lines := runner.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "sudo umount /dev/mmcblk0", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "sudo dd if="))
	assert.Contains(t, lines[1], "bs=8M")
}

func TestFlash_CopyFailure(t *testing.T) {
	image := writeImage(t, "core.wic", []byte("raw"))
	runner := processtest.New().On("dd", processtest.Fail(1, "dd: failed to open '/dev/sdb': Permission denied"))
	o, states := newOrchestrator(runner, Config{}, "/dev/sdb")
	sink := &processtest.Sink{}

	res, err := o.Flash(context.Background(), Request{Image: image, Device: "/dev/sdb"}, sink)
	require.NoError(t, err)
	assert.False(t, res.Succeeded)
	assert.Contains(t, res.ErrorText, "Permission denied")
	assert.Equal(t, []State{StateUnmounting, StateCopying, StateFailed}, *states)
	assert.Empty(t, sink.Percents)
}

func TestFlash_Preconditions(t *testing.T) {
	image := writeImage(t, "core.wic", []byte("raw"))

	tests := []struct {
		name    string
		req     Request
		wantErr error
	}{
		{"no device", Request{Image: image}, errors.ErrNoDevice},
		{"not a device path", Request{Image: image, Device: "sdb"}, errors.ErrNoDevice},
		{"missing image", Request{Image: filepath.Join(t.TempDir(), "gone.wic"), Device: "/dev/sdb"}, errors.ErrImageNotFound},
		{"image is a directory", Request{Image: t.TempDir(), Device: "/dev/sdb"}, errors.ErrImageNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := processtest.New()
			o, states := newOrchestrator(runner, Config{}, "/dev/sdb")

			_, err := o.Flash(context.Background(), tt.req, nil)
			assert.True(t, errors.Is(err, tt.wantErr), "error = %v", err)
			assert.Equal(t, "precondition error", errors.Category(err))
			assert.Empty(t, runner.Calls(), "nothing may run before preconditions pass")
			assert.Empty(t, *states)
		})
	}
}

func TestFlash_CompressedImages(t *testing.T) {
	content := bytes.Repeat([]byte("yocto"), 4096)

	tests := []struct {
		name string
		file string
		data []byte
	}{
		{"gzip", "core.wic.gz", gzipBytes(t, content)},
		{"xz", "core.wic.xz", xzBytes(t, content)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			image := writeImage(t, tt.file, tt.data)
			runner := processtest.New()
			o, states := newOrchestrator(runner, Config{})

			res, err := o.Flash(context.Background(), Request{Image: image, Device: "/dev/sdc"}, nil)
			require.NoError(t, err)
			require.True(t, res.Succeeded, res.ErrorText)

			calls := runner.Calls()
			require.Len(t, calls, 1)
			assert.Equal(t, "dd of=/dev/sdc bs=4M status=progress conv=fsync", calls[0].Line())
			assert.Equal(t, content, calls[0].Stdin)
			assert.Equal(t, []State{StateUnmounting, StateCopying, StateDone}, *states)
		})
	}
}

func TestFlash_CorruptCompressedImage(t *testing.T) {
	image := writeImage(t, "core.wic.gz", []byte("definitely not gzip"))
	runner := processtest.New()
	o, states := newOrchestrator(runner, Config{})

	res, err := o.Flash(context.Background(), Request{Image: image, Device: "/dev/sdc"}, nil)
	require.NoError(t, err)
	assert.False(t, res.Succeeded)
	assert.Contains(t, res.ErrorText, "gzip")
	assert.Equal(t, StateFailed, (*states)[len(*states)-1])
}

// ===== Image Tests =====

func TestImageSize(t *testing.T) {
	raw := writeImage(t, "core.wic", make([]byte, 1234))
	gz := writeImage(t, "core.wic.gz", gzipBytes(t, make([]byte, 100000)))
	bz := writeImage(t, "core.wic.bz2", []byte("BZh9"))

	size, err := ImageSize(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), size)

	size, err = ImageSize(gz)
	require.NoError(t, err)
	assert.Equal(t, int64(100000), size)

	size, err = ImageSize(bz)
	require.NoError(t, err)
	assert.Zero(t, size)

	_, err = ImageSize(filepath.Join(t.TempDir(), "missing.wic"))
	assert.Error(t, err)
}

func TestImageSize_WrappedGzipSizeIsUnknown(t *testing.T) {
	// A 4 GiB + 10 byte image stores ISIZE 10 in a trailer far smaller
	// than the compressed data
	content := make([]byte, 4096)
	copy(content, []byte{0x1f, 0x8b, 0x08})
	copy(content[len(content)-4:], []byte{10, 0, 0, 0})
	gz := writeImage(t, "big.wic.gz", content)

	size, err := ImageSize(gz)
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestLocateImage(t *testing.T) {
	buildDir := t.TempDir()
	deploy := filepath.Join(buildDir, "tmp", "deploy", "images", "raspberrypi4")
	require.NoError(t, os.MkdirAll(deploy, 0755))

	base := time.Now().Add(-time.Hour)
	files := []struct {
		name   string
		offset time.Duration
	}{
		{"core-image-base-raspberrypi4.rootfs-20260101.wic.bz2", 10 * time.Minute},
		{"core-image-base-raspberrypi4.rootfs-20260102.wic.bz2", 20 * time.Minute},
		{"core-image-base-raspberrypi4.rootfs-20260102.wic.bmap", 30 * time.Minute},
		{"core-image-minimal-raspberrypi4.rootfs.wic.bz2", 40 * time.Minute},
	}
	for _, f := range files {
		path := filepath.Join(deploy, f.name)
		require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
		mod := base.Add(f.offset)
		require.NoError(t, os.Chtimes(path, mod, mod))
	}

	got, err := LocateImage(buildDir, "raspberrypi4", "core-image-base")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(deploy, files[1].name), got)

	_, err = LocateImage(buildDir, "raspberrypi4", "core-image-full-cmdline")
	assert.True(t, errors.Is(err, errors.ErrImageNotFound))
}

// ===== Drive Tests =====

func TestScanDrives(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "block"), 0755))

	devices := []struct {
		name   string
		target string
		size   string
		model  string
	}{
		{"sda", "devices/pci0000:00/0000:00:17.0/ata1/host0/target0:0:0/0:0:0:0/block/sda", "1000215216", "Samsung SSD"},
		{"sdb", "devices/pci0000:00/0000:00:14.0/usb2/2-1/2-1:1.0/host6/target6:0:0/6:0:0:0/block/sdb", "30310400", "Cruzer Blade"},
		{"mmcblk0", "devices/platform/soc/mmc0/mmc_host/mmc0/mmc0:aaaa/block/mmcblk0", "62333952", ""},
		{"mmcblk0boot0", "devices/platform/soc/mmc0/mmc_host/mmc0/mmc0:aaaa/block/mmcblk0/mmcblk0boot0", "8192", ""},
		{"loop0", "devices/virtual/block/loop0", "0", ""},
	}
	for _, d := range devices {
		dir := filepath.Join(root, d.target)
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "device"), 0755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "size"), []byte(d.size+"\n"), 0644))
		if d.model != "" {
			require.NoError(t, os.WriteFile(filepath.Join(dir, "device", "model"), []byte(d.model+"    \n"), 0644))
		}
		require.NoError(t, os.Symlink(filepath.Join("..", d.target), filepath.Join(root, "block", d.name)))
	}

	drives, err := ScanDrives(root)
	require.NoError(t, err)
	require.Len(t, drives, 2)

	assert.Equal(t, Drive{Name: "mmcblk0", Path: "/dev/mmcblk0", SizeBytes: 62333952 * 512, Transport: "mmc"}, drives[0])
	assert.Equal(t, Drive{Name: "sdb", Path: "/dev/sdb", SizeBytes: 30310400 * 512, Model: "Cruzer Blade", Transport: "usb"}, drives[1])
	assert.Equal(t, "sdb 14.5G Cruzer Blade (usb)", drives[1].String())
}

func TestScanDrives_MissingSysfs(t *testing.T) {
	_, err := ScanDrives(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
