package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                               "/",
		"/metrics":                       "/metrics",
		"/v1/session":                    "/v1/session",
		"/v1/violations/abc":             "/v1/violations/:id",
		"/v1/violations/abc/resolve":     "/v1/violations/:id/resolve",
		"/v1/associations/xyz":           "/v1/associations/:id",
		"/v1/users/u1/assignments":       "/v1/users/:id/assignments",
		"/v1/users/u1/assignments/r1":    "/v1/users/:id/assignments/:roleID",
		"/v1/roles/r1/permissions":       "/v1/roles/:id/permissions",
		"/v1/violations?status=open":     "/v1/violations",
		"/v1/violations/abc/a/b/c":       "/v1/violations/abc/a/b/c",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
