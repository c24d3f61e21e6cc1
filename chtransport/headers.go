package chtransport

import (
	"fmt"
	"net/http"
	"runtime"
)

const libraryVersion = "0.1.0"

// UserAgent renders the "[caller-name ]rowbinary-go/<ver> (<os>) <transport>/<ver>"
// format of spec.md §4.5 step 3.
func UserAgent(clientName string) string {
	base := fmt.Sprintf("rowbinary-go/%s (%s) net/http/%s", libraryVersion, runtime.GOOS, runtime.Version())
	if clientName == "" {
		return base
	}
	return clientName + " " + base
}

// MergeHeaders applies defaults, then perCall (which wins on conflict by
// canonical header name), onto req.
func MergeHeaders(req *http.Request, defaults, perCall map[string]string) {
	for k, v := range defaults {
		req.Header.Set(k, v)
	}
	for k, v := range perCall {
		req.Header.Set(k, v)
	}
}
