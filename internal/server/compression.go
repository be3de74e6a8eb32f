package server

import (
	"net/http"

	"github.com/klauspost/compress/gzhttp"
)

// compressionMinSize keeps small detail bodies uncompressed.
const compressionMinSize = 512

// newCompression returns a gzip middleware limited to JSON bodies. File and
// archive downloads carry an exact Content-Length and are never wrapped.
func newCompression() func(http.Handler) http.Handler {
	wrap, err := gzhttp.NewWrapper(
		gzhttp.MinSize(compressionMinSize),
		gzhttp.ContentTypes([]string{"application/json"}),
	)
	if err != nil {
		// only reachable with invalid static options
		panic(err)
	}
	return func(next http.Handler) http.Handler {
		return wrap(next)
	}
}
