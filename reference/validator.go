// Package reference cross-checks a package directory's files against a
// signature's claimed reference set, ported from the original
// ReferenceValidator's recursive directory walk onto io/fs.WalkDir.
package reference

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	verrors "github.com/wacapps/vcore/errors"
	"github.com/wacapps/vcore/signature"
)

var distributorSignaturePattern = regexp.MustCompile(`^signature([1-9][0-9]*)\.xml$`)

// Validate walks pkgDir and confirms that every regular file, minus the
// documented exclusions, appears in sig.ReferenceSet. It returns the first
// violation encountered, or nil.
//
// Exclusions: author-signature.xml is excluded only when sig is itself the
// author signature; any top-level signature<N>.xml file is always excluded.
func Validate(sig *signature.Data, pkgDir string) error {
	return fs.WalkDir(os.DirFS(pkgDir), ".", func(relPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return verrors.New(verrors.ReferenceMismatch, "reference validator: reading %s: %s", relPath, err)
		}
		if relPath == "." {
			return nil
		}
		if d.IsDir() {
			return nil
		}

		if !d.Type().IsRegular() {
			return verrors.New(verrors.ReferenceMismatch, "reference validator: unsupported file type at %s", relPath)
		}

		if isExcluded(sig, relPath) {
			return nil
		}

		slashPath := filepath.ToSlash(relPath)
		if !sig.HasReference(slashPath) {
			return verrors.New(verrors.ReferenceMismatch, "reference validator: file not referenced: %s", slashPath)
		}

		return nil
	})
}

func isExcluded(sig *signature.Data, relPath string) bool {
	if filepath.Dir(relPath) != "." {
		return false
	}
	if relPath == "author-signature.xml" {
		return sig.IsAuthor()
	}
	if distributorSignaturePattern.MatchString(relPath) {
		return true
	}
	return false
}
