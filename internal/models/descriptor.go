package models

import (
	"fmt"
	"regexp"
)

// FieldKind enumerates the declared types of personal fields. Unknown kinds
// are valid and carry the documented fallback behavior.
type FieldKind string

const (
	FieldKindDate    FieldKind = "Date"
	FieldKindInt     FieldKind = "Int"
	FieldKindCode    FieldKind = "Code"
	FieldKindUnknown FieldKind = ""
)

// Kind normalises a raw type tag into a FieldKind.
func Kind(raw string) FieldKind {
	switch FieldKind(raw) {
	case FieldKindDate, FieldKindInt, FieldKindCode:
		return FieldKind(raw)
	default:
		return FieldKindUnknown
	}
}

// Placeholder returns the generic redaction value for the kind. Unknown kinds
// fall back to the literal field name. That fallback is almost certainly not
// an intentional anonymization value, but redacted datasets in the wild
// already contain it, so it is preserved as-is rather than fixed.
func (k FieldKind) Placeholder(fieldName string) interface{} {
	switch k {
	case FieldKindDate:
		return "1111-01-01"
	case FieldKindInt:
		return 0
	case FieldKindCode:
		return "http://xxxxx"
	default:
		return fieldName
	}
}

// PersonalField names one redactable field within a record type.
type PersonalField struct {
	Name string    `mapstructure:"name"`
	Kind FieldKind `mapstructure:"kind"`
	// Unique fields receive a subject-derived placeholder (the local part of
	// the email) instead of the generic kind placeholder.
	Unique bool `mapstructure:"unique"`
}

// ReferenceDescriptor declares how one record type references the subject and
// which of its fields hold personal data. The descriptor list is external
// site-level configuration consumed by the anonymization engine.
type ReferenceDescriptor struct {
	RecordType     string          `mapstructure:"record_type"`
	PersonalFields []PersonalField `mapstructure:"personal_fields"`
	MatchField     string          `mapstructure:"match_field"`
	// AppliesToWebsiteUser restricts the descriptor to subjects holding the
	// guest role; staff accounts are exempt from such rules.
	AppliesToWebsiteUser bool `mapstructure:"applies_to_website_user"`
}

// identPattern constrains record type and field names to plain SQL
// identifiers, since they are interpolated into generated statements.
var identPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Validate rejects malformed descriptors before any record is touched.
func (d ReferenceDescriptor) Validate() error {
	if d.RecordType == "" {
		return fmt.Errorf("descriptor missing record_type")
	}
	if !identPattern.MatchString(d.RecordType) {
		return fmt.Errorf("descriptor record_type %q is not a valid identifier", d.RecordType)
	}
	if d.MatchField == "" {
		return fmt.Errorf("descriptor %s missing match_field", d.RecordType)
	}
	if !identPattern.MatchString(d.MatchField) {
		return fmt.Errorf("descriptor %s match_field %q is not a valid identifier", d.RecordType, d.MatchField)
	}
	for _, f := range d.PersonalFields {
		if f.Name == "" || !identPattern.MatchString(f.Name) {
			return fmt.Errorf("descriptor %s personal field %q is not a valid identifier", d.RecordType, f.Name)
		}
	}
	return nil
}
