package process

import (
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/ProtonMail/pgpstream/digest"
	pgpErrors "github.com/ProtonMail/pgpstream/errors"
	"github.com/ProtonMail/pgpstream/pipeline"
)

// FileSource reads detached signed data from the file system. It is
// the DetachedSource used when the configuration supplies none.
type FileSource struct{}

// HashDatafiles hashes the named files, or the data file derived from
// the signature file name when no names are given. Text mode pushes a
// canonicalization filter so the digest sees CR LF line endings; if
// any line was too long to canonicalize losslessly the hashing
// completes but ErrLineTooLong is returned.
func (FileSource) HashDatafiles(md *digest.Context, names []string, sigName string, textmode bool) error {
	if len(names) == 0 {
		name := dataFileName(sigName)
		if name == "" {
			return errors.New("pgpstream: no signed data to hash")
		}
		names = []string{name}
	}
	for _, name := range names {
		if err := hashFile(md, name, textmode); err != nil {
			return err
		}
	}
	return nil
}

// AskForDetachedData fails: reading the data interactively needs a
// caller supplied hook.
func (FileSource) AskForDetachedData(md *digest.Context, name string) error {
	return errors.Errorf("pgpstream: detached signature %q needs the signed data", name)
}

// dataFileName derives the signed data file from the signature file
// name by dropping a .sig or .asc suffix.
func dataFileName(sigName string) string {
	switch {
	case strings.HasSuffix(sigName, ".sig"):
		return strings.TrimSuffix(sigName, ".sig")
	case strings.HasSuffix(sigName, ".asc"):
		return strings.TrimSuffix(sigName, ".asc")
	default:
		return ""
	}
}

func hashFile(md *digest.Context, name string, textmode bool) error {
	f, err := os.Open(name)
	if err != nil {
		return errors.Wrap(err, "opening signed data")
	}
	defer f.Close()

	var src io.Reader = f
	var text *pipeline.TextFilter
	if textmode {
		text = pipeline.NewTextFilter()
		pl := pipeline.New(pipeline.NewNamedStream(f, name))
		if err := pl.Push(text); err != nil {
			return err
		}
		defer pl.Close()
		src = pl.Stream()
	}
	if _, err := io.Copy(md, src); err != nil {
		return errors.Wrap(err, "hashing signed data")
	}
	if text != nil && text.Truncated() > 0 {
		return errors.Wrapf(pgpErrors.ErrLineTooLong, "%d line(s) lost data", text.Truncated())
	}
	return nil
}
