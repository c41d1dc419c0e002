// Package csvdoc implements the in-memory form of the roster document: a
// comma-delimited flat file with a fixed header row and one record per line.
//
// All operations are pure transforms over a RecordSet; durability is the
// concern of the docstore package. Parsing is defensive: malformed rows are
// skipped rather than failing the whole document.
package csvdoc

import (
	"errors"
	"strings"
)

// Header is the schema tag stored as row 0 of every roster document.
const Header = "FirstName,LastName,Email,PasswordHash,Role"

// Delimiter separates fields within a row. Field values must never contain
// it; there is no quoting or escaping in this format.
const Delimiter = ","

// Roles recognized by the roster. Any other value normalizes to RoleAuthor.
const (
	RoleAdmin   = "Admin"
	RoleManager = "Manager"
	RoleAuthor  = "Author"
)

// ErrFieldDelimiter is returned by ValidateField for values that would
// corrupt the document.
var ErrFieldDelimiter = errors.New("field must not contain a comma")

// NormalizeRole maps unknown role values to RoleAuthor.
func NormalizeRole(role string) string {
	switch role {
	case RoleAdmin, RoleManager, RoleAuthor:
		return role
	}
	return RoleAuthor
}

// ValidateField rejects values containing the field delimiter.
func ValidateField(value string) error {
	if strings.Contains(value, Delimiter) {
		return ErrFieldDelimiter
	}
	return nil
}

// Record is one roster entry. Email is the natural key, compared
// case-insensitively. PasswordHash is opaque and only ever set at creation.
type Record struct {
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	Role         string `json:"role"`
}

// RecordSet is the decoded form of a roster document: the header row plus
// all records in insertion order.
type RecordSet struct {
	header  string
	records []Record
}

// NewRecordSet returns an empty set with the canonical header.
func NewRecordSet() *RecordSet {
	return &RecordSet{header: Header}
}

// Len returns the number of records, excluding the header.
func (rs *RecordSet) Len() int {
	return len(rs.records)
}

// Records returns a copy of all records in order.
func (rs *RecordSet) Records() []Record {
	out := make([]Record, len(rs.records))
	copy(out, rs.records)
	return out
}

// Parse decodes a document into a RecordSet. The first non-empty line is
// kept verbatim as the header so that Serialize round-trips exactly. Rows
// with a field count other than five are skipped. Empty or malformed input
// yields a header-only set.
func Parse(document string) *RecordSet {
	rs := NewRecordSet()
	first := true
	for line := range strings.SplitSeq(document, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		if first {
			rs.header = line
			first = false
			continue
		}
		fields := strings.Split(line, Delimiter)
		if len(fields) != 5 {
			continue
		}
		rs.records = append(rs.records, Record{
			FirstName:    fields[0],
			LastName:     fields[1],
			Email:        fields[2],
			PasswordHash: fields[3],
			Role:         fields[4],
		})
	}
	return rs
}

// Serialize encodes the set back into document form, the exact inverse of
// Parse for any set Parse produced. The document always ends with a newline.
func Serialize(rs *RecordSet) string {
	var b strings.Builder
	b.WriteString(rs.header)
	b.WriteByte('\n')
	for _, r := range rs.records {
		b.WriteString(r.FirstName)
		b.WriteString(Delimiter)
		b.WriteString(r.LastName)
		b.WriteString(Delimiter)
		b.WriteString(r.Email)
		b.WriteString(Delimiter)
		b.WriteString(r.PasswordHash)
		b.WriteString(Delimiter)
		b.WriteString(r.Role)
		b.WriteByte('\n')
	}
	return b.String()
}

// FindByEmail returns the first record whose email matches, ignoring case.
// Emails are expected unique but duplicates are not rejected here; the
// first match wins.
func (rs *RecordSet) FindByEmail(email string) (Record, bool) {
	needle := strings.ToLower(strings.TrimSpace(email))
	if needle == "" {
		return Record{}, false
	}
	for _, r := range rs.records {
		if strings.ToLower(r.Email) == needle {
			return r, true
		}
	}
	return Record{}, false
}

// Insert appends a record. Uniqueness is the caller's responsibility: check
// FindByEmail first and reject duplicates before inserting.
func (rs *RecordSet) Insert(r Record) {
	rs.records = append(rs.records, r)
}

// Update is a partial update of the records matching targetEmail. Nil
// fields retain their prior value. The password hash is never overwritten
// regardless of input. Identity no-op if no row matches; callers must check
// existence first to signal not-found.
type Update struct {
	FirstName *string
	LastName  *string
	Email     *string
	Role      *string
}

// Apply rewrites every record matching targetEmail according to u.
func (rs *RecordSet) Apply(targetEmail string, u Update) {
	needle := strings.ToLower(strings.TrimSpace(targetEmail))
	for i := range rs.records {
		if strings.ToLower(rs.records[i].Email) != needle {
			continue
		}
		if u.FirstName != nil {
			rs.records[i].FirstName = strings.TrimSpace(*u.FirstName)
		}
		if u.LastName != nil {
			rs.records[i].LastName = strings.TrimSpace(*u.LastName)
		}
		if u.Email != nil {
			rs.records[i].Email = strings.TrimSpace(*u.Email)
		}
		if u.Role != nil {
			rs.records[i].Role = NormalizeRole(*u.Role)
		}
		if rs.records[i].Role == "" {
			rs.records[i].Role = RoleAuthor
		}
	}
}

// Delete removes all records matching targetEmail, shifting subsequent rows
// up. The header is never removed.
func (rs *RecordSet) Delete(targetEmail string) {
	needle := strings.ToLower(strings.TrimSpace(targetEmail))
	kept := rs.records[:0]
	for _, r := range rs.records {
		if strings.ToLower(r.Email) == needle {
			continue
		}
		kept = append(kept, r)
	}
	rs.records = kept
}
