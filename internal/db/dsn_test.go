package db

import "testing"

func TestNormalizeDSN(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"url passthrough", "postgres://u:p@localhost:5432/app?sslmode=disable", "postgres://u:p@localhost:5432/app?sslmode=disable"},
		{"quoted url", `"postgresql://u:p@db/app"`, "postgresql://u:p@db/app"},
		{"kv adds sslmode", "host=localhost user=app dbname=app", "host=localhost user=app dbname=app sslmode=disable"},
		{"kv collapses spaces", "host=localhost   user=app  sslmode=require", "host=localhost user=app sslmode=require"},
		{"empty", "   ", ""},
		{"opaque unchanged", "not-a-dsn", "not-a-dsn"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeDSN(tc.in); got != tc.want {
				t.Fatalf("NormalizeDSN(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
