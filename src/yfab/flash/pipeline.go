package flash

import (
	"compress/bzip2"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ulikunitz/xz"
	"golang.org/x/sync/errgroup"

	"github.com/bitswalk/yfab/src/yfab/process"
)

// DefaultBlockSize is the dd block size used when none is configured
const DefaultBlockSize = "4M"

// Decompressor is an in-process stage that turns a compressed image
// stream into raw bytes
type Decompressor struct {
	Format string
	open   func(r io.Reader) (io.ReadCloser, error)
}

// Open wraps r with the decompressor
func (d *Decompressor) Open(r io.Reader) (io.ReadCloser, error) {
	return d.open(r)
}

var decompressors = map[string]*Decompressor{
	".gz": {Format: "gzip", open: func(r io.Reader) (io.ReadCloser, error) {
		return gzip.NewReader(r)
	}},
	".bz2": {Format: "bzip2", open: func(r io.Reader) (io.ReadCloser, error) {
		return io.NopCloser(bzip2.NewReader(r)), nil
	}},
	".xz": {Format: "xz", open: func(r io.Reader) (io.ReadCloser, error) {
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(xr), nil
	}},
}

// DecompressorFor returns the stage for the image suffix, or nil for raw
// images
func DecompressorFor(image string) *Decompressor {
	for suffix, d := range decompressors {
		if strings.HasSuffix(image, suffix) {
			return d
		}
	}
	return nil
}

// Pipeline is the declarative flash plan: an optional decompress stage
// feeding the copy command's stdin
type Pipeline struct {
	Image      string
	Decompress *Decompressor
	Copy       process.Command
}

// Plan builds the pipeline for writing image to device. The copy command
// reads the image itself when no decompression is needed.
func Plan(image, device, blockSize string, sudo bool) Pipeline {
	if blockSize == "" {
		blockSize = DefaultBlockSize
	}
	d := DecompressorFor(image)

	var args []string
	if d == nil {
		args = append(args, "if="+image)
	}
	args = append(args, "of="+device, "bs="+blockSize, "status=progress", "conv=fsync")

	cmd := process.Command{Name: "dd", Args: args}
	if sudo {
		cmd = process.Command{Name: "sudo", Args: append([]string{"dd"}, args...)}
	}
	return Pipeline{Image: image, Decompress: d, Copy: cmd}
}

// Execute runs the pipeline. The decompress stage and the copy command are
// joined by an io.Pipe.
func (p Pipeline) Execute(ctx context.Context, runner process.Runner, onLine process.LineFunc) process.Result {
	if p.Decompress == nil {
		return runner.Run(ctx, p.Copy, onLine)
	}

	f, err := os.Open(p.Image)
	if err != nil {
		return process.Failed("failed to open image: %v", err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	var g errgroup.Group
	g.Go(func() error {
		r, err := p.Decompress.Open(f)
		if err != nil {
			err = fmt.Errorf("failed to open %s stream: %w", p.Decompress.Format, err)
			pw.CloseWithError(err)
			return err
		}
		defer r.Close()

		_, err = io.Copy(pw, r)
		pw.CloseWithError(err)
		if err != nil && err != io.ErrClosedPipe {
			return fmt.Errorf("%s decompression failed: %w", p.Decompress.Format, err)
		}
		return nil
	})

	cmd := p.Copy
	cmd.Stdin = pr
	res := runner.Run(ctx, cmd, onLine)
	// unblock the decompressor if the copy ended early
	pr.CloseWithError(io.ErrClosedPipe)

	if err := g.Wait(); err != nil {
		log.Error("Decompress stage failed", "image", p.Image, "error", err)
		if res.Succeeded {
			return process.Failed("%v", err)
		}
		res.ErrorText = strings.TrimSpace(err.Error() + "\n" + res.ErrorText)
	}
	return res
}
