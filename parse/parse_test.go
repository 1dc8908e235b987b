package parse

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildZip(t *testing.T, files map[string][]string) []byte {
	buf := &bytes.Buffer{}
	w := zip.NewWriter(buf)
	for filename, content := range files {
		f, err := w.Create(filename)
		require.NoError(t, err)
		_, err = f.Write([]byte(strings.Join(content, "\n")))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	return buf.Bytes()
}

func fixtureTimetable() []string {
	return []string{
		"T;1;IC;;",
		"V;2025-01-01;2025-01-31;1111111",
		"S;A;;08:00:00;;;;PL;D;",
		"S;B;08:30:00;;;;;PL;D;",
		"E",
	}
}

func TestExpandArchives(t *testing.T) {
	archive := buildZip(t, map[string][]string{
		"north.txt": fixtureTimetable(),
		"south.txt": fixtureTimetable(),
	})

	files, err := ExpandArchives(map[string][]byte{
		"plain.txt":   []byte("E"),
		"weekly.zip":  archive,
		"ARCHIVE.ZIP": archive,
	})
	require.NoError(t, err)

	assert.Equal(t, 5, len(files))
	assert.Equal(t, []byte("E"), files["plain.txt"])
	assert.Equal(t, strings.Join(fixtureTimetable(), "\n"), string(files["weekly.zip/north.txt"]))
	assert.Contains(t, files, "weekly.zip/south.txt")
	assert.Contains(t, files, "ARCHIVE.ZIP/north.txt")
	assert.Contains(t, files, "ARCHIVE.ZIP/south.txt")
}

// Some operators place files in subdirectories. They shouldn't, but
// they do.
func TestExpandArchivesUnorthodoxStructure(t *testing.T) {
	archive := buildZip(t, map[string][]string{
		"export/2025/north.txt": fixtureTimetable(),
	})

	files, err := ExpandArchives(map[string][]byte{"x.zip": archive})
	require.NoError(t, err)
	assert.Equal(t, 1, len(files))

	records, err := ParseStrict("x.zip/export/2025/north.txt", files["x.zip/export/2025/north.txt"], EncodingUTF8)
	require.NoError(t, err)
	assert.Equal(t, 1, len(records))
}

func TestExpandArchivesSameBaseName(t *testing.T) {
	archive := buildZip(t, map[string][]string{
		"2025/north.txt": fixtureTimetable(),
		"2026/north.txt": {"E"},
		"north.txt":      {"E", "E"},
	})

	files, err := ExpandArchives(map[string][]byte{"x.zip": archive})
	require.NoError(t, err)
	assert.Equal(t, 3, len(files))
	assert.Equal(t, strings.Join(fixtureTimetable(), "\n"), string(files["x.zip/2025/north.txt"]))
	assert.Equal(t, "E", string(files["x.zip/2026/north.txt"]))
	assert.Equal(t, "E\nE", string(files["x.zip/north.txt"]))
}

func TestExpandArchivesCollision(t *testing.T) {
	archive := buildZip(t, map[string][]string{"north.txt": {"E"}})

	_, err := ExpandArchives(map[string][]byte{
		"x.zip":           archive,
		"x.zip/north.txt": []byte("E"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "x.zip/north.txt")
}

func TestExpandArchivesMalformed(t *testing.T) {
	_, err := ExpandArchives(map[string][]byte{"broken.zip": []byte("malformed")})
	assert.Error(t, err)
}
