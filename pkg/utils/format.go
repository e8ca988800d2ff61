package utils

import (
	"fmt"
	"time"

	"github.com/chmdznr/oldmaps/pkg/models"
)

// FormatSize formats a byte count using binary units
func FormatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit && exp < 3; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGT"[exp])
}

// FormatDuration formats a duration as HH:MM:SS
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// BytesToMB converts bytes to decimal megabytes.
func BytesToMB(bytes int64) float64 {
	return float64(bytes) / models.BytesPerMB
}

// FormatMB renders a megabyte figure with one decimal.
func FormatMB(mb float64) string {
	return fmt.Sprintf("%.1f MB", mb)
}

// FormatRatio renders a compression ratio such as "65.8x", or "n/a" when
// the ratio is not defined.
func FormatRatio(ratio float64, ok bool) string {
	if !ok {
		return "n/a"
	}
	return fmt.Sprintf("%.1fx", ratio)
}
