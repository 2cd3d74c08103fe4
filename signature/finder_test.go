package signature

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFindOrdersAuthorFirst(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"signature2.xml", "author-signature.xml", "signature1.xml", "index.html", "signature0x.xml"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	found, err := Find(dir)
	require.NoError(t, err)
	require.Equal(t, 3, len(found))
	require.Equal(t, AuthorFileNumber, found[0].Number)
	require.Equal(t, 1, found[1].Number)
	require.Equal(t, 2, found[2].Number)
}

func TestFindDeterministic(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "signature1.xml"), []byte("x"), 0o644))

	first, err := Find(dir)
	require.NoError(t, err)
	second, err := Find(dir)
	require.NoError(t, err)
	require.Equal(t, first, second)
}
