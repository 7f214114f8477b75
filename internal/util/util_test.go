package util

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestTempSibling(t *testing.T) {

	dst := "/data/db/markers.db"
	a := TempSibling(dst)
	b := TempSibling(dst)

	if !strings.HasPrefix(a, dst+".tmp.") {
		t.Errorf("temp path %q should sit next to the destination", a)
	}
	if a == b {
		t.Errorf("two temp paths collided: %q", a)
	}
}

func TestPublishFile(t *testing.T) {

	dir := t.TempDir()
	dst := filepath.Join(dir, "out.db")
	tmp := TempSibling(dst)

	if err := os.WriteFile(tmp, []byte("payload"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := PublishFile(tmp, dst); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(dst)
	if err != nil || string(data) != "payload" {
		t.Errorf("published file wrong: %q %v", data, err)
	}
	if _, err := os.Stat(tmp); !os.IsNotExist(err) {
		t.Errorf("temp file still present after publish")
	}
}

func TestDirExists(t *testing.T) {

	if !DirExists(t.TempDir()) {
		t.Errorf("existing dir reported missing")
	}
	if DirExists("/no/such/dir/anywhere") {
		t.Errorf("missing dir reported present")
	}

	file := filepath.Join(t.TempDir(), "plain")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if DirExists(file) {
		t.Errorf("regular file reported as directory")
	}
	// Stat fails with ENOTDIR here, not ErrNotExist.
	if DirExists(filepath.Join(file, "sub")) {
		t.Errorf("path under a regular file reported as directory")
	}
}
