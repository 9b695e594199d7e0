package factstore

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/shuo-young/lydia-go/internal/lydiaerr"
)

// relationPath builds the path to a decompiler-emitted relation file for
// one contract address, per the filesystem layout:
// <toolchainDir>/.temp/<addr>/out/Leslie_<relation>.csv
func relationPath(toolchainDir, addr, relation string) string {
	return toolchainDir + "/.temp/" + addr + "/out/Leslie_" + relation + ".csv"
}

// readRelation reads a tab-separated, headerless relation file and maps
// each row through parse. A missing file is treated as an empty table
// (non-fatal, per §4.1's failure semantics); a malformed row is skipped
// rather than aborting the whole read.
func readRelation[T any](path string, parse func(row []string) (T, bool)) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, lydiaerr.Wrap(lydiaerr.Io, err, "opening relation file %s", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = '\t'
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var out []T
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return out, lydiaerr.Wrap(lydiaerr.FlowAnalysis, err, "parsing relation file %s", path)
		}
		v, ok := parse(row)
		if !ok {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// ReadRelation is the exported counterpart of readRelation, used by
// packages outside factstore (the flow engine) that need to read a
// per-address relation file by name without duplicating the path layout
// or the missing-file-is-empty-table policy.
func ReadRelation[T any](toolchainDir, addr, relation string, parse func(row []string) (T, bool)) ([]T, error) {
	return readRelation(relationPath(toolchainDir, addr, relation), parse)
}

// Col and ColInt are the exported counterparts of col/colInt.
func Col(row []string, i int) string    { return col(row, i) }
func ColInt(row []string, i int) int    { return colInt(row, i) }

func col(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func colInt(row []string, i int) int {
	n, _ := strconv.Atoi(col(row, i))
	return n
}
