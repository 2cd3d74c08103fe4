package signature

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	verrors "github.com/wacapps/vcore/errors"
)

const authorSignatureFilename = "author-signature.xml"

var distributorSignaturePattern = regexp.MustCompile(`^signature([1-9][0-9]*)\.xml$`)

// Found describes one signature file located in a package directory.
type Found struct {
	Filename string
	Number   int
}

// Find scans the top-level of dir for author-signature.xml and
// signature<N>.xml files. Other entries are ignored. Results are sorted
// ascending by number, so the author signature (-1) sorts first.
func Find(dir string) ([]Found, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, verrors.NewParseError("signature finder: reading %s: %s", dir, err)
	}

	var found []Found
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		switch {
		case name == authorSignatureFilename:
			found = append(found, Found{Filename: name, Number: AuthorFileNumber})
		default:
			if m := distributorSignaturePattern.FindStringSubmatch(name); m != nil {
				n, err := strconv.Atoi(m[1])
				if err != nil {
					continue
				}
				found = append(found, Found{Filename: name, Number: n})
			}
		}
	}

	sort.Slice(found, func(i, j int) bool {
		return found[i].Number < found[j].Number
	})

	return found, nil
}

// Path joins a Found's filename onto the package directory.
func (f Found) Path(dir string) string {
	return filepath.Join(dir, f.Filename)
}
