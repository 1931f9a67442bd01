package utils

import "fmt"

// FormatFileSizeMB renders a byte count as megabytes with one decimal, e.g. "12.0MB".
func FormatFileSizeMB(bytes int64) string {
	return fmt.Sprintf("%.1fMB", float64(bytes)/(1024*1024))
}
