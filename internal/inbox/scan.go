package inbox

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"
)

// Listing is a snapshot of an inbox directory.
type Listing struct {
	// Metas are sidecar names in lexicographic order.
	Metas []string
	// Payloads are all other regular file names in lexicographic order.
	Payloads []string

	files map[string]time.Time
}

// Scan lists dir. Hidden files (including in-flight atomic-write temp
// files) and subdirectories are ignored. A missing dir is an empty listing.
func Scan(dir string) (Listing, error) {
	l := Listing{files: make(map[string]time.Time)}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return l, fmt.Errorf("failed to read inbox %s: %w", dir, err)
	}

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Moved away between ReadDir and Info.
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		l.files[name] = info.ModTime()
		if IsMetaName(name) {
			l.Metas = append(l.Metas, name)
		} else {
			l.Payloads = append(l.Payloads, name)
		}
	}

	slices.Sort(l.Metas)
	slices.Sort(l.Payloads)
	return l, nil
}

// Has reports whether name was present at scan time.
func (l Listing) Has(name string) bool {
	_, ok := l.files[name]
	return ok
}

// ModTime returns the modification time recorded at scan time.
func (l Listing) ModTime(name string) time.Time {
	return l.files[name]
}

// Orphans returns payloads that have no sidecar and are not in claimed.
func (l Listing) Orphans(claimed map[string]bool) []string {
	var out []string
	for _, p := range l.Payloads {
		if claimed[p] || l.Has(MetaName(p)) {
			continue
		}
		out = append(out, p)
	}
	return out
}
