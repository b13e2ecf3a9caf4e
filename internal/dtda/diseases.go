package dtda

import (
	"bytes"
	_ "embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

//go:embed resources/cbio_efo_map.tsv
var bundledDiseaseTable []byte

// DiseaseTable maps disease names to cBioPortal study id prefixes.
type DiseaseTable struct {
	prefixes map[string][]string
}

// LoadDiseaseTable reads the table from path, or the bundled table when path
// is empty.
func LoadDiseaseTable(path string) (*DiseaseTable, error) {
	if path == "" {
		return ParseDiseaseTable(bytes.NewReader(bundledDiseaseTable))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open disease table: %w", err)
	}
	defer f.Close()
	return ParseDiseaseTable(f)
}

// ParseDiseaseTable parses "<study prefix>\t<disease name>" lines.
func ParseDiseaseTable(r io.Reader) (*DiseaseTable, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.FieldsPerRecord = 2
	reader.Comment = '#'

	t := &DiseaseTable{prefixes: make(map[string][]string)}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse disease table: %w", err)
		}
		prefix := strings.TrimSpace(record[0])
		name := normalizeDisease(record[1])
		if prefix == "" || name == "" {
			continue
		}
		if !contains(t.prefixes[name], prefix) {
			t.prefixes[name] = append(t.prefixes[name], prefix)
		}
	}
	return t, nil
}

// Prefixes returns the study prefixes for a disease, or nil if unknown.
func (t *DiseaseTable) Prefixes(disease string) []string {
	return t.prefixes[normalizeDisease(disease)]
}

// Diseases returns the known disease names, sorted.
func (t *DiseaseTable) Diseases() []string {
	names := make([]string, 0, len(t.prefixes))
	for n := range t.prefixes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func normalizeDisease(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
