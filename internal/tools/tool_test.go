package tools

import (
	"strings"
	"testing"
)

func TestArgHelpers(t *testing.T) {
	args := map[string]any{
		"name":    "main.go",
		"offset":  float64(10), // JSON numbers decode as float64
		"limit":   42,
		"verbose": true,
	}

	if v, ok := GetString(args, "name"); !ok || v != "main.go" {
		t.Errorf("GetString = %q, %v", v, ok)
	}
	if _, ok := GetString(args, "missing"); ok {
		t.Error("GetString should miss absent keys")
	}

	if v, ok := GetInt(args, "offset"); !ok || v != 10 {
		t.Errorf("GetInt(float64) = %d, %v", v, ok)
	}
	if v, ok := GetInt(args, "limit"); !ok || v != 42 {
		t.Errorf("GetInt(int) = %d, %v", v, ok)
	}
	if v := GetIntDefault(args, "missing", 7); v != 7 {
		t.Errorf("GetIntDefault = %d, want 7", v)
	}

	if v, ok := GetBool(args, "verbose"); !ok || !v {
		t.Errorf("GetBool = %v, %v", v, ok)
	}
	if v := GetBoolDefault(args, "missing", true); !v {
		t.Error("GetBoolDefault should fall back")
	}
}

func TestToolResultToMap(t *testing.T) {
	ok := NewSuccessResult("all good").ToMap()
	if ok["content"] != "all good" {
		t.Errorf("content = %v", ok["content"])
	}
	if _, hasErr := ok["error"]; hasErr {
		t.Error("success result should not carry an error key")
	}

	bad := NewErrorResult("broke").ToMap()
	if bad["error"] != "broke" {
		t.Errorf("error = %v", bad["error"])
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := NewValidationError("file_path", "is required")
	if !strings.Contains(err.Error(), "file_path") {
		t.Errorf("message = %q, want field name included", err.Error())
	}
}
