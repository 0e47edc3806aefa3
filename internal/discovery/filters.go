package discovery

import (
	"path"
	"strings"
)

type directoryMarkersFilter struct{}

// NewDirectoryMarkers drops the zero-byte "folder/" objects consoles create.
func NewDirectoryMarkers() Filter {
	return &directoryMarkersFilter{}
}

func (f *directoryMarkersFilter) Name() string { return "directory_markers" }

func (f *directoryMarkersFilter) IsEnabled() bool { return true }

func (f *directoryMarkersFilter) Apply(keys []string) ([]string, Step) {
	return keep(keys, func(key string) bool {
		return key != "" && !strings.HasSuffix(key, "/")
	})
}

type extensionsFilter struct {
	allowed map[string]struct{}
}

// NewExtensions keeps keys with one of the given extensions. An empty list
// disables the step.
func NewExtensions(extensions []string) Filter {
	allowed := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = struct{}{}
	}
	return &extensionsFilter{allowed: allowed}
}

func (f *extensionsFilter) Name() string { return "extensions" }

func (f *extensionsFilter) IsEnabled() bool { return len(f.allowed) > 0 }

func (f *extensionsFilter) Apply(keys []string) ([]string, Step) {
	return keep(keys, func(key string) bool {
		_, ok := f.allowed[strings.ToLower(path.Ext(key))]
		return ok
	})
}

func keep(keys []string, pred func(string) bool) ([]string, Step) {
	kept := make([]string, 0, len(keys))
	for _, key := range keys {
		if pred(key) {
			kept = append(kept, key)
		}
	}
	return kept, Step{Initial: len(keys), Dropped: len(keys) - len(kept), Left: len(kept)}
}
