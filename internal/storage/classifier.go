package storage

import "strings"

// Classifier decides whether a destination path is local or remote. It is
// deliberately pluggable (spec.md §9's open question: "NAS detection
// should be a polymorphic Storage Adapter, leaving the classifier
// pluggable" — do not guess at a mount-table-based implementation).
type Classifier interface {
	IsRemote(path string) bool
}

// SubstringClassifier matches original_source's actual NAS detection
// exactly: a case-insensitive substring match against a fixed indicator
// list, not a mount-table lookup or a stat-based probe. Ported from
// NASStorageAdapter.is_remote in
// infrastructure/storage/storage_adapter.py.
type SubstringClassifier struct {
	Indicators []string
}

// DefaultIndicators mirrors the original's nas_indicators list.
var DefaultIndicators = []string{
	"/volumes/",
	"/mnt/",
	"nas",
	"network",
	"smb://",
	"nfs://",
}

// NewSubstringClassifier builds a classifier over indicators, falling
// back to DefaultIndicators when none are given.
func NewSubstringClassifier(indicators []string) *SubstringClassifier {
	if len(indicators) == 0 {
		indicators = DefaultIndicators
	}
	return &SubstringClassifier{Indicators: indicators}
}

// IsRemote reports whether path contains any configured indicator,
// case-insensitively.
func (c *SubstringClassifier) IsRemote(path string) bool {
	lower := strings.ToLower(path)
	for _, indicator := range c.Indicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}
