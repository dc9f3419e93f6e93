package textutil

import "github.com/dustin/go-humanize"

// HumanBytes renders a byte count with binary units ("1.5 MiB").
func HumanBytes(v int64) string {
	if v < 0 {
		return "-" + humanize.IBytes(uint64(-v))
	}
	return humanize.IBytes(uint64(v))
}
