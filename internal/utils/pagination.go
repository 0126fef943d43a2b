// Package utils provides small helpers shared by the HTTP layer and the CLI.
package utils

import "strconv"

// Page bounds applied to list endpoints.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// AtoiDefault parses s, returning def when s is empty or not an integer.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ClampPage parses raw page and page_size values. Missing or invalid values
// fall back to page 1 and DefaultPageSize; the size is capped at MaxPageSize.
func ClampPage(rawPage, rawSize string) (page, size int) {
	page = AtoiDefault(rawPage, 1)
	if page < 1 {
		page = 1
	}
	size = AtoiDefault(rawSize, DefaultPageSize)
	switch {
	case size < 1:
		size = 1
	case size > MaxPageSize:
		size = MaxPageSize
	}
	return page, size
}

// TotalPages is ceil(total/size); size must be positive.
func TotalPages(total int64, size int) int {
	return int((total + int64(size) - 1) / int64(size))
}
