package chapters

import (
	"path/filepath"

	"github.com/eivind-moen/comicdl/internal/scrape"
	"github.com/eivind-moen/comicdl/internal/util"
)

type Chapter struct {
	scrape.Chapter
}

func Wrap(all []scrape.Chapter) []Chapter {
	out := make([]Chapter, len(all))
	for i, c := range all {
		out[i] = Chapter{c}
	}
	return out
}

// DirName is the on-disk folder name for the chapter inside the
// series directory.
func (c Chapter) DirName() string {
	return util.Sanitize(c.Name)
}

// TempDirName is where pages land while packaging to CBZ is pending.
func (c Chapter) TempDirName() string {
	return c.DirName() + "_tmp"
}

func (c Chapter) CBZName() string {
	return c.DirName() + ".cbz"
}

func (c Chapter) CBZPath(seriesDir string) string {
	return filepath.Join(seriesDir, c.CBZName())
}
