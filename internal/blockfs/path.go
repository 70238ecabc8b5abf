package blockfs

import (
	"strings"

	"github.com/j1sk1ss/cdbms/pkg/pathutil"
)

// LoadPath builds the on-disk path for a container of the given name and
// extension under basePath: "<basePath>/<name>.<extension>", mirroring
// get_load_path, with the name truncated and normalized to an 8.3-style
// short name before the extension is appended.
func LoadPath(name string, basePath, extension string) (string, error) {
	short := ToShortName(name)
	return pathutil.SecureJoin(basePath, short+"."+extension)
}

// ToShortName normalizes a container name to an 8.3-style short name:
// uppercase, at most 8 characters, with any path separators or dots
// stripped so the result is safe to use as a single path component.
func ToShortName(name string) string {
	name = strings.ToUpper(name)
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '.', ' ':
			return -1
		default:
			return r
		}
	}, name)

	if len(name) > 8 {
		name = name[:8]
	}
	return name
}
