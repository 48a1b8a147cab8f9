package dyplodev

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const partialExt = ".partial"

// bitstreamPath returns location of the partial image of filter for
// node id.
func bitstreamPath(dir, filter string, id int) string {
	return filepath.Join(dir, filter, fmt.Sprintf("%d%s", id, partialExt))
}

// candidates lists node ids which have partial image of filter. Missing
// filter directory means no candidates.
func candidates(dir, filter string) ([]int, error) {
	if filter == "" || strings.ContainsAny(filter, `/\`) || filter == "." || filter == ".." {
		return nil, nil
	}
	entries, err := os.ReadDir(filepath.Join(dir, filter))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var ids []int
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, partialExt) {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSuffix(name, partialExt))
		if err != nil || id < 0 {
			continue
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}
