package conf

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/aymanbagabas/go-udiff"

	"github.com/bitswalk/yfab/src/common/errors"
	"github.com/bitswalk/yfab/src/common/paths"
)

// Marker lines delimiting the managed blocks
const (
	LocalStart  = "# --- YFAB AUTO CONFIG START ---"
	LocalEnd    = "# --- YFAB AUTO CONFIG END ---"
	LayersStart = "# --- YFAB LAYERS START ---"
	LayersEnd   = "# --- YFAB LAYERS END ---"
)

// Patch is the full generated content for one file
type Patch struct {
	// Pinned directives must be the only assignment to their key in the
	// whole file. They are written just above the managed block.
	Pinned []Directive
	// Directives make up the managed block, in order
	Directives []Directive
	// Cleanup removes lines written by earlier schemes wherever they are
	Cleanup []Predicate
}

// Empty reports whether the patch generates no lines at all
func (p Patch) Empty() bool {
	return len(p.Pinned) == 0 && len(p.Directives) == 0
}

// Patcher owns one managed block delimited by a marker pair
type Patcher struct {
	Start string
	End   string
}

// Local returns the patcher for local.conf
func Local() Patcher {
	return Patcher{Start: LocalStart, End: LocalEnd}
}

// Layers returns the patcher for bblayers.conf
func Layers() Patcher {
	return Patcher{Start: LayersStart, End: LayersEnd}
}

// Strip returns the document without the managed block, the cleanup
// matches and any assignment to a pinned key. A start marker without a
// matching end marker removes everything after it.
func (p Patcher) Strip(content []byte, patch Patch) *Document {
	doc := Parse(content)

	remove := append([]Predicate(nil), patch.Cleanup...)
	for _, d := range patch.Pinned {
		if d.Key != "" {
			remove = append(remove, KeyPattern(d.Key))
		}
	}

	inBlock := false
	doc.Filter(func(text string) bool {
		marker := strings.TrimSpace(text)
		switch {
		case inBlock:
			if marker == p.End {
				inBlock = false
			}
			return false
		case marker == p.Start:
			inBlock = true
			return false
		case marker == p.End:
			return false
		}
		for _, match := range remove {
			if match(text) {
				return false
			}
		}
		return true
	})

	return doc
}

// Apply merges the patch into content and returns the new file content.
// It is pure: applying the same patch to its own output yields the same
// bytes.
func (p Patcher) Apply(content []byte, patch Patch) []byte {
	doc := p.Strip(content, patch)
	if patch.Empty() {
		return doc.Bytes()
	}

	doc.Terminate()
	doc.Append(Lines(patch.Pinned)...)
	doc.Append(p.Start)
	doc.Append(Lines(patch.Directives)...)
	doc.Append(p.End)
	return doc.Bytes()
}

// Preview reads path and returns its current content along with the
// content PatchFile would write, without touching the file.
func (p Patcher) Preview(path string, patch Patch, primary bool) (before, after []byte, err error) {
	before, err = read(path, primary)
	if err != nil {
		return nil, nil, err
	}
	return before, p.Apply(before, patch), nil
}

// PatchFile applies the patch to the file at path. A missing primary file
// is a configuration error; a missing auxiliary file is treated as empty.
// The file is rewritten atomically and left alone when nothing changes.
func (p Patcher) PatchFile(path string, patch Patch, primary bool) error {
	before, after, err := p.Preview(path, patch, primary)
	if err != nil {
		return err
	}

	if bytes.Equal(before, after) {
		log.Debug("Configuration unchanged", "path", path)
		return nil
	}

	if err := paths.WriteFileAtomic(path, after, 0644); err != nil {
		return errors.ErrConfigWrite.WithMessagef("Failed to write %s", path).WithCause(err)
	}

	log.Info("Configuration updated", "path", path,
		"pinned", len(patch.Pinned), "directives", len(patch.Directives))
	return nil
}

func read(path string, primary bool) ([]byte, error) {
	dir := filepath.Dir(path)
	if !paths.IsDir(dir) {
		return nil, errors.ErrBuildTreeMissing.WithMessagef(
			"Directory %s does not exist, initialize the build tree first", dir)
	}

	content, err := os.ReadFile(path)
	switch {
	case err == nil:
		return content, nil
	case os.IsNotExist(err) && !primary:
		return nil, nil
	case os.IsNotExist(err):
		return nil, errors.ErrConfigNotFound.WithMessagef("%s not found, initialize the build tree first", path)
	default:
		return nil, errors.ErrConfigRead.WithMessagef("Failed to read %s", path).WithCause(err)
	}
}

var layerNamePattern = regexp.MustCompile(`([^/\s"\\]+)[\s"\\]*$`)

// LayerName returns the directory name a bblayers registration line refers
// to, or "" when the line carries no path.
func LayerName(line string) string {
	m := layerNamePattern.FindStringSubmatch(line)
	if m == nil || m[1] == "+=" || m[1] == "=" {
		return ""
	}
	return m[1]
}

// LayersPatch builds the bblayers.conf patch for the registration lines.
// A line is dropped when the layer it names is already listed in the
// user-owned part of content.
func LayersPatch(content []byte, lines []string) Patch {
	user := Layers().Strip(content, Patch{})

	var block []Directive
	for _, line := range lines {
		name := LayerName(line)
		if name != "" && user.Contains(mentionsLayer(name)) {
			log.Debug("Layer already registered by user", "layer", name)
			continue
		}
		block = append(block, Directive{Line: line})
	}
	return Patch{Directives: block}
}

// PreviewLayers returns the current bblayers.conf content and the content
// RegisterLayers would write.
func PreviewLayers(path string, lines []string) (before, after []byte, err error) {
	before, err = read(path, true)
	if err != nil {
		return nil, nil, err
	}
	return before, Layers().Apply(before, LayersPatch(before, lines)), nil
}

// RegisterLayers writes the registration lines into the managed block of
// bblayers.conf.
func RegisterLayers(path string, lines []string) error {
	content, err := read(path, true)
	if err != nil {
		return err
	}
	return Layers().PatchFile(path, LayersPatch(content, lines), true)
}

func mentionsLayer(name string) Predicate {
	re := regexp.MustCompile(`/` + regexp.QuoteMeta(name) + `(?:[\s"/\\]|$)`)
	return func(line string) bool {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			return false
		}
		return re.MatchString(line)
	}
}

// WriteGenerated writes a fully regenerated auxiliary file, creating parent
// directories as needed. The file is only rewritten when its content
// differs, so unchanged settings leave timestamps alone.
func WriteGenerated(path string, content []byte) (bool, error) {
	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, content) {
		return false, nil
	}

	if err := paths.EnsureDir(path); err != nil {
		return false, errors.ErrConfigWrite.WithMessagef("Failed to create directory for %s", path).WithCause(err)
	}
	if err := paths.WriteFileAtomic(path, content, 0644); err != nil {
		return false, errors.ErrConfigWrite.WithMessagef("Failed to write %s", path).WithCause(err)
	}

	log.Debug("Generated file written", "path", path)
	return true, nil
}

// Diff renders a unified diff between two versions of a file, or "" when
// they are identical.
func Diff(name string, before, after []byte) string {
	if bytes.Equal(before, after) {
		return ""
	}
	return udiff.Unified("a/"+name, "b/"+name, string(before), string(after))
}
