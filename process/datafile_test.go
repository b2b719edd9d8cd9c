package process

import (
	"crypto/sha1" //nolint:gosec
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ProtonMail/pgpstream/constants"
	"github.com/ProtonMail/pgpstream/digest"
	pgpErrors "github.com/ProtonMail/pgpstream/errors"
	"github.com/ProtonMail/pgpstream/pipeline"
)

func TestDataFileName(t *testing.T) {
	assert.Equal(t, "doc.txt", dataFileName("doc.txt.sig"))
	assert.Equal(t, "doc.txt", dataFileName("doc.txt.asc"))
	assert.Equal(t, "", dataFileName("doc.txt.gpg"))
	assert.Equal(t, "", dataFileName(""))
}

func TestFileSourceReportsTruncatedLines(t *testing.T) {
	long := strings.Repeat("x", pipeline.MaxLineLen+100)
	path := filepath.Join(t.TempDir(), "big.txt")
	require.NoError(t, os.WriteFile(path, []byte(long+"\nshort\n"), 0o600))

	md := digest.New()
	require.NoError(t, md.Enable(constants.DigestSHA1))
	err := FileSource{}.HashDatafiles(md, []string{path}, "", true)

	require.Error(t, err)
	assert.True(t, errors.Is(err, pgpErrors.ErrLineTooLong))
	assert.Contains(t, err.Error(), "1 line(s) lost data")

	// hashing completes over what the line limit kept: the first
	// MaxLineLen-1 bytes of the overlong line, then its canonical
	// line ending
	kept := long[:pipeline.MaxLineLen-1]
	want := sha1.Sum([]byte(kept + "\r\nshort\r\n"))
	assert.Equal(t, want[:], md.Sum(constants.DigestSHA1))
}
