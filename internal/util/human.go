package util

import "fmt"

// Human renders a byte count in binary units for summary lines and
// the progress bar decorators.
func Human(n int64) string {
	units := []struct {
		limit int64
		name  string
	}{
		{1 << 30, "GB"},
		{1 << 20, "MB"},
		{1 << 10, "KB"},
	}

	for _, u := range units {
		if n >= u.limit {
			return fmt.Sprintf("%.2f %s", float64(n)/float64(u.limit), u.name)
		}
	}

	return fmt.Sprintf("%d B", n)
}
