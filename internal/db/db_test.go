package db

import (
	"testing"

	"github.com/memohai/relay/internal/config"
)

func TestDSN(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		cfg  config.PostgresConfig
		want string
	}{
		{
			name: "password",
			cfg:  config.PostgresConfig{Host: "db", Port: 5432, User: "relay", Password: "p@ss", Database: "relay", SSLMode: "disable"},
			want: "postgres://relay:p%40ss@db:5432/relay?sslmode=disable",
		},
		{
			name: "no password",
			cfg:  config.PostgresConfig{Host: "127.0.0.1", Port: 5433, User: "postgres", Database: "x"},
			want: "postgres://postgres@127.0.0.1:5433/x",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := DSN(tc.cfg); got != tc.want {
				t.Fatalf("DSN() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestParseDirection(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"up", "down"} {
		if _, err := ParseDirection(raw); err != nil {
			t.Fatalf("unexpected error for %q: %v", raw, err)
		}
	}
	if _, err := ParseDirection("sideways"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	t.Parallel()

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	if len(entries) < 2 {
		t.Fatalf("expected up and down migrations, got %d files", len(entries))
	}
}
