package models

import (
	"reflect"
	"strings"
	"testing"
)

// gormTag extracts the gorm tag from a struct field.
func gormTag(t *testing.T, typ reflect.Type, fieldName string) string {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	return f.Tag.Get("gorm")
}

// assertGormTag checks that a struct field's gorm tag contains the expected value.
func assertGormTag(t *testing.T, typ reflect.Type, fieldName, expected string) {
	t.Helper()
	tag := gormTag(t, typ, fieldName)
	if !strings.Contains(tag, expected) {
		t.Errorf("%s.%s gorm tag = %q, want to contain %q", typ.Name(), fieldName, tag, expected)
	}
}

// assertFieldType checks that a struct field has the expected Go type.
func assertFieldType(t *testing.T, typ reflect.Type, fieldName, expectedType string) {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	if got := f.Type.String(); got != expectedType {
		t.Errorf("%s.%s type = %q, want %q", typ.Name(), fieldName, got, expectedType)
	}
}

func TestInferenceCall_Fields(t *testing.T) {
	typ := reflect.TypeOf(InferenceCall{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "ID", "autoIncrement")
	assertGormTag(t, typ, "Round", "index")
	assertGormTag(t, typ, "Operation", "not null")
	assertGormTag(t, typ, "Operation", "index")
	assertGormTag(t, typ, "Outcome", "default:ok")
	assertGormTag(t, typ, "Error", "type:text")
	assertGormTag(t, typ, "CreatedAt", "index")

	assertFieldType(t, typ, "LatencyMs", "int64")
	assertFieldType(t, typ, "ImageSynthesized", "bool")
	assertFieldType(t, typ, "CreatedAt", "time.Time")
}

func TestOutcomeValues(t *testing.T) {
	if OutcomeOK == OutcomeError {
		t.Fatal("outcome constants must differ")
	}
	if len(OutcomeOK) > 8 || len(OutcomeError) > 8 {
		t.Error("outcome values must fit the size:8 column")
	}
}
