package flash

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bitswalk/yfab/src/common/errors"
	"github.com/bitswalk/yfab/src/common/paths"
)

// ImageSize returns the number of bytes flashing path will write: the file
// size for raw images, the gzip ISIZE trailer for .gz images and 0
// (unknown) for other compressed formats or a wrapped ISIZE.
func ImageSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}

	switch {
	case strings.HasSuffix(path, ".gz"):
		return gzipSize(path, info.Size())
	case DecompressorFor(path) != nil:
		return 0, nil
	default:
		return info.Size(), nil
	}
}

// gzipSize reads the uncompressed size from the gzip trailer. ISIZE holds
// the size modulo 2^32; a value below the compressed size means it wrapped
// and the size is reported as unknown.
func gzipSize(path string, fileSize int64) (int64, error) {
	if fileSize < 18 {
		return 0, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var trailer [4]byte
	if _, err := f.ReadAt(trailer[:], fileSize-4); err != nil && err != io.EOF {
		return 0, err
	}
	size := int64(binary.LittleEndian.Uint32(trailer[:]))
	if size < fileSize {
		return 0, nil
	}
	return size, nil
}

// LocateImage returns the newest <image>*.wic* file in the machine's deploy
// directory, ignoring .bmap block maps.
func LocateImage(buildDir, machine, image string) (string, error) {
	dir := filepath.Join(buildDir, "tmp", "deploy", "images", machine)
	found := paths.NewestMatch(func(name string) bool {
		return strings.HasSuffix(name, ".bmap")
	}, filepath.Join(dir, image+"*.wic*"))

	if found == "" {
		return "", errors.ErrImageNotFound.WithMessagef("No %s image found in %s", image, dir)
	}
	return found, nil
}
