package container

import (
	"github.com/j1sk1ss/cdbms/internal/blockfs"
	"github.com/j1sk1ss/cdbms/internal/cache"
	"github.com/j1sk1ss/cdbms/internal/codec"
	"github.com/j1sk1ss/cdbms/internal/lock"
	"github.com/j1sk1ss/cdbms/pkg/logx"
)

// Deps bundles the collaborators every container level needs: the block
// file system, the global container cache, the header/name-array codec,
// and a logger. One Deps is shared by an entire database's container tree.
type Deps struct {
	FS           *blockfs.FS
	Cache        *cache.Cache
	Codec        codec.Codec
	Logger       *logx.Logger
	LockRecorder lock.Recorder
}

func (d *Deps) codec() codec.Codec {
	if d.Codec == nil {
		return codec.IdentityCodec{}
	}
	return d.Codec
}

func (d *Deps) logf(format string, args ...interface{}) {
	if d.Logger != nil {
		d.Logger.Debug(format, args...)
	}
}
