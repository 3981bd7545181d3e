package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestSanitizeBase(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"/", ""},
		{"api", "/api"},
		{"/api", "/api"},
		{"/api/", "/api"},
		{" api ", "/api"},
	}
	for _, c := range cases {
		if got := sanitizeBase(c.in); got != c.want {
			t.Fatalf("sanitizeBase(%q)=%q want %q", c.in, got, c.want)
		}
	}
}

func TestIsSafeUnitName(t *testing.T) {
	valid := []string{"a", "nginx", "getty@tty1", "systemd-fsck@dev-disk-by\\x2duuid", "dbus.socket:1", "A1._-"}
	invalid := []string{"", "..", "a..b", "a/b", "-rf", "hello*", "a b", "unicode한글", strings.Repeat("x", 256)}
	for _, s := range valid {
		if !isSafeUnitName(s) {
			t.Fatalf("expected valid name %q", s)
		}
	}
	for _, s := range invalid {
		if isSafeUnitName(s) {
			t.Fatalf("expected invalid name %q", s)
		}
	}
}

func TestWriteJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	writeJSON(c, http.StatusTeapot, map[string]int{"a": 1})
	if rec.Code != http.StatusTeapot {
		t.Fatalf("code=%d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type=%q", ct)
	}
	if strings.TrimSpace(rec.Body.String()) != `{"a":1}` {
		t.Fatalf("body=%q", rec.Body.String())
	}
}
