package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                  "/",
		"/metrics":                          "/metrics",
		"/v1/auth/sessions/sess_abc":        "/v1/auth/sessions/:id",
		"/v1/auth/sessions":                 "/v1/auth/sessions",
		"/v1/auth/login":                    "/v1/auth/login",
		"/v1/access/check?debug=1":          "/v1/access/check",
		"/v1/auth/sessions/sess_abc/extra":  "/v1/auth/sessions/sess_abc/extra",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
