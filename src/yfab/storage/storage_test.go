package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bitswalk/yfab/src/common/errors"
)

// ===== Test Helpers =====

func newLocal(t *testing.T) *LocalBackend {
	t.Helper()
	b, err := NewLocal(LocalConfig{BasePath: filepath.Join(t.TempDir(), "artifacts")})
	if err != nil {
		t.Fatalf("NewLocal() error = %v", err)
	}
	return b
}

func upload(t *testing.T, b Backend, key, content string) {
	t.Helper()
	if err := b.Upload(context.Background(), key, strings.NewReader(content), int64(len(content)), ""); err != nil {
		t.Fatalf("Upload(%s) error = %v", key, err)
	}
}

// ===== Local Backend Tests =====

func TestLocalBackend_UploadAndList(t *testing.T) {
	b := newLocal(t)
	ctx := context.Background()

	upload(t, b, "raspberrypi4/core-image-base.wic.bz2", "image")
	upload(t, b, "raspberrypi4/update-bundle.raucb", "bundle")
	upload(t, b, "qemux86-64/core-image-minimal.wic", "qemu")

	ok, err := b.Exists(ctx, "raspberrypi4/update-bundle.raucb")
	if err != nil || !ok {
		t.Errorf("Exists() = %v, %v", ok, err)
	}

	objects, err := b.List(ctx, "raspberrypi4/")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(objects) != 2 {
		t.Fatalf("List() = %+v", objects)
	}
	if objects[0].Key != "raspberrypi4/core-image-base.wic.bz2" || objects[0].Size != 5 {
		t.Errorf("objects[0] = %+v", objects[0])
	}

	info, err := b.GetInfo(ctx, "qemux86-64/core-image-minimal.wic")
	if err != nil || info.Size != 4 || info.ETag == "" {
		t.Errorf("GetInfo() = %+v, %v", info, err)
	}
}

func TestLocalBackend_SizeMismatch(t *testing.T) {
	b := newLocal(t)
	err := b.Upload(context.Background(), "m/file", strings.NewReader("abc"), 10, "")
	if err == nil {
		t.Fatal("expected size mismatch error")
	}
	if ok, _ := b.Exists(context.Background(), "m/file"); ok {
		t.Error("partial upload left behind")
	}
	if objects, _ := b.List(context.Background(), ""); len(objects) != 0 {
		t.Errorf("temp files visible: %+v", objects)
	}
}

func TestLocalBackend_KeysStayInside(t *testing.T) {
	b := newLocal(t)

	tests := []struct {
		key  string
		want string
	}{
		{"m/a.wic", filepath.Join(b.Location(), "m", "a.wic")},
		{"../../etc/passwd", filepath.Join(b.Location(), "etc", "passwd")},
		{"/abs/key", filepath.Join(b.Location(), "abs", "key")},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := b.ResolvePath(tt.key); got != tt.want {
				t.Errorf("ResolvePath(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestLocalBackend_Delete(t *testing.T) {
	b := newLocal(t)
	ctx := context.Background()
	upload(t, b, "m/nested/file", "x")

	if err := b.Delete(ctx, "m/nested/file"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(b.Location(), "m")); !os.IsNotExist(err) {
		t.Error("empty parent directories should be removed")
	}
	if err := b.Delete(ctx, "m/nested/file"); err != nil {
		t.Errorf("deleting a missing object should succeed, got %v", err)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		wantType string
		wantErr  bool
	}{
		{"default local", Config{Local: LocalConfig{BasePath: t.TempDir()}}, "local", false},
		{"s3", Config{Type: "s3", S3: S3Config{Endpoint: "http://localhost:9000", Bucket: "images", UsePathStyle: true}}, "s3", false},
		{"s3 without bucket", Config{Type: "s3"}, "", true},
		{"unknown", Config{Type: "ftp"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && b.Type() != tt.wantType {
				t.Errorf("Type() = %s, want %s", b.Type(), tt.wantType)
			}
		})
	}
}

func TestS3Backend_Location(t *testing.T) {
	tests := []struct {
		cfg  S3Config
		want string
	}{
		{S3Config{Bucket: "images"}, "s3://images"},
		{S3Config{Endpoint: "http://minio:9000", Bucket: "images"}, "http://minio:9000/images"},
	}

	for _, tt := range tests {
		b, err := NewS3(tt.cfg)
		if err != nil {
			t.Fatal(err)
		}
		if got := b.Location(); got != tt.want {
			t.Errorf("Location() = %q, want %q", got, tt.want)
		}
	}
}

// ===== Publish Tests =====

func TestPublish(t *testing.T) {
	b := newLocal(t)
	image := filepath.Join(t.TempDir(), "core-image-base-raspberrypi4.wic.bz2")
	if err := os.WriteFile(image, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	a, err := Publish(context.Background(), b, "raspberrypi4", image)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if a.Key != "raspberrypi4/core-image-base-raspberrypi4.wic.bz2" || a.Size != 5 {
		t.Errorf("artifact = %+v", a)
	}
	// sha256("hello")
	const want = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if a.SHA256 != want {
		t.Errorf("SHA256 = %s", a.SHA256)
	}

	sum, err := os.ReadFile(b.ResolvePath(a.ChecksumKey))
	if err != nil {
		t.Fatal(err)
	}
	if string(sum) != want+"  core-image-base-raspberrypi4.wic.bz2\n" {
		t.Errorf("checksum file = %q", sum)
	}
	if a.Location != b.Location() {
		t.Errorf("Location = %s", a.Location)
	}
}

func TestPublish_Errors(t *testing.T) {
	b := newLocal(t)

	tests := []struct {
		name    string
		machine string
		file    string
		wantErr error
	}{
		{"no machine", "", "/tmp/x.wic", errors.ErrInvalidSetting},
		{"missing file", "raspberrypi4", filepath.Join(t.TempDir(), "none.wic"), errors.ErrImageNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Publish(context.Background(), b, tt.machine, tt.file)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
