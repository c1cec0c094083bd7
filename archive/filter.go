package archive

import (
	"path"
	"strings"
)

var sourceExts = map[string]struct{}{
	".h": {}, ".hpp": {}, ".c": {}, ".cpp": {}, ".cc": {}, ".cs": {},
	".txt": {}, ".ini": {}, ".md": {}, ".json": {}, ".xml": {}, ".yml": {}, ".yaml": {},
}

var binaryExts = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".bmp": {}, ".gif": {},
	".zip": {}, ".7z": {}, ".tar": {}, ".gz": {}, ".xz": {},
	".dll": {}, ".so": {}, ".bin": {}, ".exe": {},
}

func memberExt(name string) string {
	if i := strings.LastIndex(name, ":"); i >= 0 {
		name = name[i+1:]
	}
	return strings.ToLower(path.Ext(strings.ReplaceAll(name, "\\", "/")))
}

// SourceFilter accepts source and text files worth scanning for symbols.
func SourceFilter(name string) bool {
	_, ok := sourceExts[memberExt(name)]
	return ok
}

// LogFilter accepts anything that is not an obvious binary.
func LogFilter(name string) bool {
	_, bad := binaryExts[memberExt(name)]
	return !bad
}
