package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bitswalk/yfab/src/common/errors"
	"github.com/bitswalk/yfab/src/common/logs"
)

var log = logs.NewDefault()

// SetLogger sets the logger for the storage package
func SetLogger(l *logs.Logger) {
	log = l
}

// Artifact describes a published file
type Artifact struct {
	Key         string `json:"key" yaml:"key"`
	ChecksumKey string `json:"checksum_key" yaml:"checksum_key"`
	SHA256      string `json:"sha256" yaml:"sha256"`
	Size        int64  `json:"size" yaml:"size"`
	Location    string `json:"location" yaml:"location"`
}

// Key returns the storage key of a file published for machine
func Key(machine, file string) string {
	return path.Join(machine, filepath.Base(file))
}

// Publish uploads file under <machine>/<name> together with a
// "<name>.sha256" checksum object in sha256sum format
func Publish(ctx context.Context, backend Backend, machine, file string) (*Artifact, error) {
	if machine == "" {
		return nil, errors.ErrInvalidSetting.WithMessage("No machine set, cannot derive the artifact key")
	}

	sum, size, err := checksum(file)
	if err != nil {
		return nil, errors.ErrImageNotFound.WithMessagef("Cannot read %s", file).WithCause(err)
	}

	f, err := os.Open(file)
	if err != nil {
		return nil, errors.ErrImageNotFound.WithMessagef("Cannot open %s", file).WithCause(err)
	}
	defer f.Close()

	name := filepath.Base(file)
	key := Key(machine, name)

	log.Info("Publishing artifact", "file", file, "key", key, "size", size, "backend", backend.Type())
	if err := backend.Upload(ctx, key, f, size, contentTypeFor(name)); err != nil {
		return nil, errors.ErrStorageUpload.WithMessagef("Failed to upload %s", key).WithCause(err)
	}

	line := []byte(fmt.Sprintf("%s  %s\n", sum, name))
	checksumKey := key + ".sha256"
	if err := backend.Upload(ctx, checksumKey, bytes.NewReader(line), int64(len(line)), "text/plain"); err != nil {
		return nil, errors.ErrStorageUpload.WithMessagef("Failed to upload %s", checksumKey).WithCause(err)
	}

	return &Artifact{
		Key:         key,
		ChecksumKey: checksumKey,
		SHA256:      sum,
		Size:        size,
		Location:    backend.Location(),
	}, nil
}

func checksum(file string) (string, int64, error) {
	f, err := os.Open(file)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

func contentTypeFor(name string) string {
	switch {
	case strings.HasSuffix(name, ".raucb"):
		return "application/x-rauc-bundle"
	case strings.HasSuffix(name, ".xz"):
		return "application/x-xz"
	case strings.HasSuffix(name, ".gz"):
		return "application/gzip"
	case strings.HasSuffix(name, ".bz2"):
		return "application/x-bzip2"
	case strings.HasSuffix(name, ".wic"):
		return "application/x-raw-disk-image"
	}
	return "application/octet-stream"
}
