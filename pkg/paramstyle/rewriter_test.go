package paramstyle

import (
	"reflect"
	"testing"
)

func TestRewriteQmark(t *testing.T) {
	res, err := Rewrite(Qmark, "SELECT * FROM t WHERE a = ? AND b = ?")
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	want := "SELECT * FROM t WHERE a = $1 AND b = $2"
	if res.Query != want {
		t.Fatalf("got %q, want %q", res.Query, want)
	}
	args, err := res.Materializer(nil, []interface{}{1, 2})
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if !reflect.DeepEqual(args, []interface{}{1, 2}) {
		t.Fatalf("got %v", args)
	}
}

func TestRewriteQmarkIgnoresLiteralsAndComments(t *testing.T) {
	sql := "SELECT '?' , \"col?\", E'a\\'?' FROM t -- trailing ? comment\nWHERE a = ?"
	res, err := Rewrite(Qmark, sql)
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	want := "SELECT '?' , \"col?\", E'a\\'?' FROM t -- trailing ? comment\nWHERE a = $1"
	if res.Query != want {
		t.Fatalf("got %q, want %q", res.Query, want)
	}
}

func TestRewriteNumericPreservesCastAndAssign(t *testing.T) {
	res, err := Rewrite(Numeric, "SELECT sum(x)::float, x := 1, :1")
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	want := "SELECT sum(x)::float, x := 1, $1"
	if res.Query != want {
		t.Fatalf("got %q, want %q", res.Query, want)
	}
}

func TestRewriteNamedDedup(t *testing.T) {
	res, err := Rewrite(Named, "SELECT :x + :x + :y")
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	want := "SELECT $1 + $1 + $2"
	if res.Query != want {
		t.Fatalf("got %q, want %q", res.Query, want)
	}
	args, err := res.Materializer(map[string]interface{}{"x": 1, "y": 2}, nil)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if !reflect.DeepEqual(args, []interface{}{1, 2}) {
		t.Fatalf("got %v", args)
	}
}

func TestRewriteFormat(t *testing.T) {
	res, err := Rewrite(Format, "SELECT %s, %s WHERE x = 100%%")
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	want := "SELECT $1, $2 WHERE x = 100%"
	if res.Query != want {
		t.Fatalf("got %q, want %q", res.Query, want)
	}
}

func TestRewriteFormatInvalidFails(t *testing.T) {
	if _, err := Rewrite(Format, "SELECT %d"); err == nil {
		t.Fatalf("expected error for unsupported format verb")
	}
}

func TestRewritePyformatDedup(t *testing.T) {
	res, err := Rewrite(Pyformat, "SELECT %(x)s + %(x)s + %(y)s")
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	want := "SELECT $1 + $1 + $2"
	if res.Query != want {
		t.Fatalf("got %q, want %q", res.Query, want)
	}
}

func TestRewritePyformatDemotesOnBarePercent(t *testing.T) {
	res, err := Rewrite(Pyformat, "SELECT %s WHERE x = 100%%")
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if res.Style != Format {
		t.Fatalf("expected demotion to Format, got %v", res.Style)
	}
}
