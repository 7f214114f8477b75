package util

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"
)

func DirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// TempSibling returns a temporary path next to dst, on the same
// filesystem so the final rename stays atomic.
func TempSibling(dst string) string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err == nil {
		return dst + ".tmp." + hex.EncodeToString(buf[:])
	}
	return dst + ".tmp." + strconv.FormatInt(time.Now().UnixNano(), 16)
}

// PublishFile moves a fully-written temporary file over dst in one
// rename, so a concurrent reader sees either the old file or the new
// one, never a partial write.
func PublishFile(tmp, dst string) error {
	if err := os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("publish %s: %w", dst, err)
	}
	return nil
}
