package cli

import (
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/vision-stage-tracker/internal/domain"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

// optional renders a missing value as "-"
func optional(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func optionalDate(t *time.Time) string {
	if t == nil {
		return "open"
	}
	return domain.FormatDate(*t)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
