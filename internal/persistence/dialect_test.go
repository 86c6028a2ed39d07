package persistence

import "testing"

func TestDialect_Rebind(t *testing.T) {
	q := `UPDATE t SET a = ?, b = ? WHERE c = ?`
	if got := DialectSQLite.rebind(q); got != q {
		t.Errorf("sqlite: got %q", got)
	}
	want := `UPDATE t SET a = $1, b = $2 WHERE c = $3`
	if got := DialectPostgres.rebind(q); got != want {
		t.Errorf("postgres: got %q, want %q", got, want)
	}
}

func TestParseDialect(t *testing.T) {
	tests := map[string]Dialect{
		"postgres":   DialectPostgres,
		"PostgreSQL": DialectPostgres,
		"sqlite":     DialectSQLite,
		" sqlite3 ":  DialectSQLite,
	}
	for in, want := range tests {
		got, err := ParseDialect(in)
		if err != nil || got != want {
			t.Errorf("ParseDialect(%q): got %v, %v", in, got, err)
		}
	}
	if _, err := ParseDialect("mysql"); err == nil {
		t.Error("mysql should be rejected")
	}
}

func TestParseAmount_FullRange(t *testing.T) {
	got, err := parseAmount("18446744073709551615")
	if err != nil || got != 18446744073709551615 {
		t.Errorf("max uint64: got %d, %v", got, err)
	}
	if _, err := parseAmount("-1"); err == nil {
		t.Error("negative amount should fail")
	}
}
