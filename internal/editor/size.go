package editor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/width"

	"github.com/arc-hci/arcgrid/internal/domain"
)

var sizePattern = regexp.MustCompile(`(?i)^(\d+)\s*[x×]\s*(\d+)$`)

// ParseSize parses a resize request such as "5x5" or "10 × 12".
// Fullwidth digits and separators are folded to ASCII first.
func ParseSize(s string) (rows, cols int, err error) {
	folded := strings.TrimSpace(width.Narrow.String(s))
	m := sizePattern.FindStringSubmatch(folded)
	if m == nil {
		return 0, 0, domain.NewEngineError(
			domain.ErrInvalidSizeFormat.Code,
			fmt.Sprintf("%q is not of the form <rows>x<cols>", s),
		)
	}
	rows, rerr := strconv.Atoi(m[1])
	cols, cerr := strconv.Atoi(m[2])
	if rerr != nil || cerr != nil || !domain.ValidDimensions(rows, cols) {
		return 0, 0, domain.NewEngineError(
			domain.ErrInvalidDimensions.Code,
			fmt.Sprintf("%s: got %s", domain.ErrInvalidDimensions.Message, folded),
		)
	}
	return rows, cols, nil
}
