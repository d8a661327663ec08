package postgres

import (
	"strings"
	"testing"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  ClientConfig
		want string
	}{
		{"explicit dsn wins", ClientConfig{DSN: "postgres://x", Host: "ignored"}, "postgres://x"},
		{"defaults", ClientConfig{Host: "db", User: "u", Password: "p", Database: "crossarb"}, "postgres://u:p@db:5432/crossarb?sslmode=disable"},
		{"explicit port and ssl", ClientConfig{Host: "db", Port: 6543, User: "u", Password: "p", Database: "d", SSLMode: "require"}, "postgres://u:p@db:6543/d?sslmode=require"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DSN(tt.cfg); got != tt.want {
				t.Errorf("DSN = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMigrationFilesOrdered(t *testing.T) {
	names, err := migrationFiles()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"001_opportunities.sql", "002_match_log.sql", "003_audit_log.sql"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("migrations = %v, want %v", names, want)
	}
	for _, n := range names {
		data, err := migrationsFS.ReadFile("migrations/" + n)
		if err != nil || !strings.Contains(string(data), "CREATE TABLE IF NOT EXISTS") {
			t.Errorf("%s: unexpected content (err %v)", n, err)
		}
	}
}
