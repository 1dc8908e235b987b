package parse

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
)

// Replaces every .zip among files with the files it contains. Entries
// are keyed by "<archive>/<entry path>", and directories are skipped.
// Two files ending up under the same name is an error.
func ExpandArchives(files map[string][]byte) (map[string][]byte, error) {
	expanded := map[string][]byte{}
	add := func(name string, content []byte) error {
		if _, found := expanded[name]; found {
			return fmt.Errorf("duplicate file %s", name)
		}
		expanded[name] = content
		return nil
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		buf := files[name]
		if !strings.EqualFold(path.Ext(name), ".zip") {
			if err := add(name, buf); err != nil {
				return nil, err
			}
			continue
		}

		r, err := zip.NewReader(bytes.NewReader(buf), int64(len(buf)))
		if err != nil {
			return nil, fmt.Errorf("unzipping %s: %w", name, err)
		}

		for _, f := range r.File {
			// There should not be any subdirectories. But, some
			// operators don't care.
			if f.FileInfo().IsDir() {
				continue
			}
			entry := strings.TrimPrefix(path.Clean("/"+f.Name), "/")

			rc, err := f.Open()
			if err != nil {
				return nil, fmt.Errorf("opening %s in %s: %w", f.Name, name, err)
			}
			content, err := io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return nil, fmt.Errorf("reading %s in %s: %w", f.Name, name, err)
			}

			if err := add(name+"/"+entry, content); err != nil {
				return nil, fmt.Errorf("expanding %s: %w", name, err)
			}
		}
	}

	return expanded, nil
}
