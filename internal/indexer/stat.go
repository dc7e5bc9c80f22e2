package indexer

import (
	"os"
	"syscall"

	"github.com/dupehound/dupehound/internal/types"
)

// newFileRecord creates a FileRecord from os.FileInfo and path.
func newFileRecord(path string, info os.FileInfo, tree int) *types.FileRecord {
	stat := info.Sys().(*syscall.Stat_t)
	name, ext := types.SplitName(path)
	return &types.FileRecord{
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Dev:     uint64(stat.Dev), //nolint:unconvert // platform-dependent type
		Ino:     stat.Ino,
		Nlink:   uint32(stat.Nlink),
		Name:    name,
		Ext:     ext,
		Tree:    tree,
	}
}
