package csvdoc

import (
	"strings"
	"testing"
)

func sampleSet() *RecordSet {
	rs := NewRecordSet()
	rs.Insert(Record{FirstName: "Alice", LastName: "Adams", Email: "alice@example.com", PasswordHash: "$2a$10$abc", Role: RoleAdmin})
	rs.Insert(Record{FirstName: "Bob", LastName: "Brown", Email: "bob@example.com", PasswordHash: "$2a$10$def", Role: RoleAuthor})
	return rs
}

func TestRoundTrip(t *testing.T) {
	rs := sampleSet()
	doc := Serialize(rs)

	parsed := Parse(doc)
	if parsed.Len() != rs.Len() {
		t.Fatalf("expected %d records after round trip, got %d", rs.Len(), parsed.Len())
	}
	for i, want := range rs.Records() {
		got := parsed.Records()[i]
		if got != want {
			t.Errorf("record %d: got %+v, want %+v", i, got, want)
		}
	}

	// String-level idempotence: serialize(parse(serialize(X))) == serialize(X).
	if again := Serialize(parsed); again != doc {
		t.Errorf("serialize not idempotent:\n%q\nvs\n%q", again, doc)
	}
}

func TestParseDefensive(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		records int
	}{
		{"empty", "", 0},
		{"header only", Header + "\n", 0},
		{"blank lines skipped", Header + "\n\n\nA,B,a@x.com,h,Author\n\n", 1},
		{"short row skipped", Header + "\nA,B,a@x.com\nC,D,c@x.com,h,Author\n", 1},
		{"long row skipped", Header + "\nA,B,a@x.com,h,Author,extra\n", 0},
		{"crlf", Header + "\r\nA,B,a@x.com,h,Author\r\n", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := Parse(tt.input)
			if rs.Len() != tt.records {
				t.Errorf("got %d records, want %d", rs.Len(), tt.records)
			}
		})
	}
}

func TestParsePreservesHeaderVerbatim(t *testing.T) {
	doc := "first,last,mail,hash,role\nA,B,a@x.com,h,Author\n"
	if got := Serialize(Parse(doc)); got != doc {
		t.Errorf("custom header not preserved: %q", got)
	}
}

func TestFindByEmail(t *testing.T) {
	rs := sampleSet()

	if _, ok := rs.FindByEmail("alice@example.com"); !ok {
		t.Error("expected to find alice")
	}
	// Case-insensitive match.
	r, ok := rs.FindByEmail("ALICE@Example.COM")
	if !ok {
		t.Fatal("expected case-insensitive match")
	}
	if r.FirstName != "Alice" {
		t.Errorf("got %q, want Alice", r.FirstName)
	}
	if _, ok := rs.FindByEmail("nobody@example.com"); ok {
		t.Error("unexpected match for unknown email")
	}
	if _, ok := rs.FindByEmail(""); ok {
		t.Error("unexpected match for empty email")
	}
}

func TestInsertThenFind(t *testing.T) {
	rs := sampleSet()
	rs.Insert(Record{FirstName: "Carol", LastName: "Clark", Email: "carol@example.com", PasswordHash: "h3", Role: RoleManager})

	r, ok := rs.FindByEmail("carol@example.com")
	if !ok {
		t.Fatal("inserted record not found")
	}
	if r.Role != RoleManager {
		t.Errorf("got role %q, want Manager", r.Role)
	}
}

func TestApplyPartialUpdate(t *testing.T) {
	rs := sampleSet()
	name := "Alicia"
	rs.Apply("alice@example.com", Update{FirstName: &name})

	r, _ := rs.FindByEmail("alice@example.com")
	if r.FirstName != "Alicia" {
		t.Errorf("first name not updated: %q", r.FirstName)
	}
	if r.LastName != "Adams" {
		t.Errorf("last name should be unchanged: %q", r.LastName)
	}
	if r.PasswordHash != "$2a$10$abc" {
		t.Errorf("password hash must never change: %q", r.PasswordHash)
	}
	if r.Role != RoleAdmin {
		t.Errorf("role should be unchanged: %q", r.Role)
	}
}

func TestApplyNormalizesBogusRole(t *testing.T) {
	rs := sampleSet()
	bogus := "Bogus"
	rs.Apply("bob@example.com", Update{Role: &bogus})

	r, _ := rs.FindByEmail("bob@example.com")
	if r.Role != RoleAuthor {
		t.Errorf("bogus role should normalize to Author, got %q", r.Role)
	}
}

func TestApplyNeverTouchesHash(t *testing.T) {
	rs := sampleSet()
	email := "alice2@example.com"
	role := RoleManager
	rs.Apply("alice@example.com", Update{Email: &email, Role: &role})

	r, ok := rs.FindByEmail("alice2@example.com")
	if !ok {
		t.Fatal("renamed record not found")
	}
	if r.PasswordHash != "$2a$10$abc" {
		t.Errorf("hash changed during update: %q", r.PasswordHash)
	}
}

func TestApplyMissingTargetIsNoop(t *testing.T) {
	rs := sampleSet()
	before := Serialize(rs)
	name := "X"
	rs.Apply("ghost@example.com", Update{FirstName: &name})
	if after := Serialize(rs); after != before {
		t.Error("update of missing target must be identity")
	}
}

func TestDelete(t *testing.T) {
	rs := sampleSet()
	rs.Delete("Alice@Example.com")

	if _, ok := rs.FindByEmail("alice@example.com"); ok {
		t.Error("deleted record still present")
	}
	if _, ok := rs.FindByEmail("bob@example.com"); !ok {
		t.Error("delete must not touch other records")
	}
	doc := Serialize(rs)
	if !strings.HasPrefix(doc, Header+"\n") {
		t.Error("header must survive deletion")
	}
}

func TestNormalizeRole(t *testing.T) {
	for _, valid := range []string{RoleAdmin, RoleManager, RoleAuthor} {
		if NormalizeRole(valid) != valid {
			t.Errorf("valid role %q changed", valid)
		}
	}
	for _, invalid := range []string{"", "admin", "root", "Bogus"} {
		if NormalizeRole(invalid) != RoleAuthor {
			t.Errorf("invalid role %q should normalize to Author", invalid)
		}
	}
}

func TestValidateField(t *testing.T) {
	if err := ValidateField("no commas here"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateField("a,b"); err == nil {
		t.Error("expected delimiter rejection")
	}
}
