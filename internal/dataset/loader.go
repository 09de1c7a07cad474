// Package dataset reads batch manifests from and writes batch reports to
// Excel workbooks.
package dataset

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"
)

var pathHeaders = []string{"audio", "file", "path", "recording"}

// LoadManifest reads audio file paths from the first sheet of an .xlsx file.
// The path column is found by header name, falling back to the first column.
// Relative paths resolve against the manifest's directory; rows that are not
// .wav or .mp3 are skipped.
func LoadManifest(path string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: open manifest")
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, eris.New("dataset: manifest has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, eris.Wrap(err, "dataset: read rows")
	}
	if len(rows) <= 1 {
		return nil, eris.New("dataset: manifest has no data rows")
	}

	col := 0
	found := false
	for i, h := range rows[0] {
		l := strings.ToLower(strings.TrimSpace(h))
		for _, want := range pathHeaders {
			if strings.Contains(l, want) {
				col, found = i, true
				break
			}
		}
		if found {
			break
		}
	}

	base := filepath.Dir(path)
	var out []string
	for _, r := range rows[1:] {
		if col >= len(r) {
			continue
		}
		p := strings.TrimSpace(r[col])
		switch strings.ToLower(filepath.Ext(p)) {
		case ".wav", ".mp3":
		default:
			continue
		}
		if !filepath.IsAbs(p) {
			p = filepath.Join(base, p)
		}
		out = append(out, p)
	}
	return out, nil
}
