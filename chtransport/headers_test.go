package chtransport

import (
	"runtime"
	"strings"
	"testing"
)

func TestUserAgentMatchesDocumentedFormat(t *testing.T) {
	ua := UserAgent("")
	if !strings.HasPrefix(ua, "rowbinary-go/"+libraryVersion+" (") {
		t.Fatalf("UserAgent() = %q, want rowbinary-go/%s (...) prefix", ua, libraryVersion)
	}
	transportTag := "net/http/" + runtime.Version()
	if !strings.HasSuffix(ua, transportTag) {
		t.Errorf("UserAgent() = %q, want <transport>/<ver> suffix %q", ua, transportTag)
	}
}

func TestUserAgentPrependsClientName(t *testing.T) {
	ua := UserAgent("my-app")
	if !strings.HasPrefix(ua, "my-app rowbinary-go/") {
		t.Fatalf("UserAgent(%q) = %q, want it prefixed with the client name", "my-app", ua)
	}
}
