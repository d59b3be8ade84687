package address

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"
)

// CSVTableLoader reads the government-published district code CSV
// (법정동코드 reference dataset). The published file is EUC-KR encoded with
// a header row of 법정동코드,법정동명,폐지여부.
type CSVTableLoader struct {
	Path string
	// UTF8 skips the EUC-KR decode for re-exported files.
	UTF8 bool
}

// Load parses the CSV into a district-name→code map. Abolished entries are
// skipped so stale names never resolve.
func (l CSVTableLoader) Load(_ context.Context) (map[string]string, error) {
	f, err := os.Open(l.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "address: open district table %s", l.Path)
	}
	defer f.Close()

	var r io.Reader = f
	if !l.UTF8 {
		r = transform.NewReader(f, korean.EUCKR.NewDecoder())
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	table := make(map[string]string)
	first := true
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "address: read district table")
		}
		if first {
			first = false
			continue
		}
		if len(rec) < 2 {
			continue
		}
		code := strings.TrimSpace(rec[0])
		name := strings.TrimSpace(rec[1])
		if len(rec) >= 3 && strings.Contains(rec[2], "폐지") {
			continue
		}
		if code == "" || name == "" {
			continue
		}
		table[name] = code
	}
	if len(table) == 0 {
		return nil, eris.Errorf("address: district table %s has no rows", l.Path)
	}
	return table, nil
}
