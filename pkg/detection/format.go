package detection

import (
	"fmt"

	"github.com/valyala/bytebufferpool"
)

// FormatBatch renders the valid records of a batch, one per line.
func FormatBatch(b Batch) string {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	fmt.Fprintf(buf, "count=%d\n", b.Count)
	for i, r := range b.Valid() {
		fmt.Fprintf(buf, "[%d] class=%d conf=%.3f x=%d y=%d w=%d h=%d\n",
			i, r.ClassID, r.Confidence, r.X, r.Y, r.W, r.H)
	}
	return buf.String()
}
