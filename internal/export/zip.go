package export

import (
	"archive/zip"
	"bytes"
	"fmt"
	"sort"
	"time"
)

// epoch is the fixed modification time stamped on every ZIP entry so the
// archive's bytes depend only on its contents, never on wall-clock time
// (spec §4.3 "All entries use a fixed timestamp").
var epoch = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// buildZIP assembles the export archive from a name -> bytes map, adding
// entries in lexicographic filename order with a fixed timestamp so
// identical inputs always produce identical ZIP bytes.
func buildZIP(files map[string][]byte) ([]byte, error) {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, name := range names {
		hdr := &zip.FileHeader{Name: name, Method: zip.Deflate}
		hdr.SetModTime(epoch)
		fw, err := w.CreateHeader(hdr)
		if err != nil {
			return nil, fmt.Errorf("export: zip entry %s: %w", name, err)
		}
		if _, err := fw.Write(files[name]); err != nil {
			return nil, fmt.Errorf("export: zip write %s: %w", name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("export: close zip: %w", err)
	}
	return buf.Bytes(), nil
}
