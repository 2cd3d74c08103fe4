package reference

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wacapps/vcore/signature"
)

func writePkg(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		full := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return dir
}

func sigWithRefs(refs ...string) *signature.Data {
	set := make(map[string]struct{}, len(refs))
	for _, r := range refs {
		set[r] = struct{}{}
	}
	return &signature.Data{FileNumber: signature.AuthorFileNumber, ReferenceSet: set}
}

func TestValidateNoViolationWhenSetsMatch(t *testing.T) {
	dir := writePkg(t, map[string]string{
		"index.html":              "x",
		"icon.png":                "y",
		"author-signature.xml":    "z",
	})
	sig := sigWithRefs("index.html", "icon.png")
	require.NoError(t, Validate(sig, dir))
}

func TestValidateReportsMissingReference(t *testing.T) {
	dir := writePkg(t, map[string]string{
		"index.html": "x",
		"icon.png":   "y",
		"stowaway.js": "z",
	})
	sig := sigWithRefs("index.html", "icon.png")
	err := Validate(sig, dir)
	require.Error(t, err)
}

func TestValidateExcludesSignatureFilesAtTopLevel(t *testing.T) {
	dir := writePkg(t, map[string]string{
		"index.html":    "x",
		"signature1.xml": "z",
	})
	sig := sigWithRefs("index.html")
	sig.FileNumber = 1
	require.NoError(t, Validate(sig, dir))
}

func TestValidateDistributorSignatureDoesNotExcludeAuthorFile(t *testing.T) {
	dir := writePkg(t, map[string]string{
		"index.html":           "x",
		"author-signature.xml": "z",
	})
	sig := sigWithRefs("index.html")
	sig.FileNumber = 1
	err := Validate(sig, dir)
	require.Error(t, err)
}
