package downloader

// Progress receives advancement ticks for one batch. The downloader
// calls it unconditionally; NopProgress is a valid substitute.
type Progress interface {
	SetTotal(total int)
	Update(done, total int, bytes int64)
	MarkDone()
}

type NopProgress struct{}

func (NopProgress) SetTotal(int) {}

func (NopProgress) Update(int, int, int64) {}

func (NopProgress) MarkDone() {}
