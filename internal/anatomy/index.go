// Package anatomy blinds a hierarchical image corpus: one source
// subfolder per subject becomes one blinded folder named by a fresh
// registry code, with slide ordering preserved, identifying metadata
// stripped, and a bidirectional digest crossref linking both sides.
package anatomy

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// rangePatterns match the "INDEX M-N" ordering token embedded in slide
// filenames. Both the INDEX and IDX spellings occur in the field, with
// hyphen or en dash between the bounds.
var rangePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)index[\s_]*([0-9]+)[\s_-]*[-–][\s_-]*([0-9]+)`),
	regexp.MustCompile(`(?i)idx[\s_]*([0-9]+)[\s_-]*[-–][\s_-]*([0-9]+)`),
}

// imageExts lists the file extensions treated as anatomy images.
var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".tif":  true,
	".tiff": true,
}

// ParseRange extracts the ordering token from a filename. ok is false
// when no token is present.
func ParseRange(name string) (start, end int, ok bool) {
	for _, pat := range rangePatterns {
		m := pat.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		s, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		e, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		return s, e, true
	}
	return 0, 0, false
}

// isImage reports whether path has a recognized image extension.
func isImage(path string) bool {
	return imageExts[strings.ToLower(filepath.Ext(path))]
}
