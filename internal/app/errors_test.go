package app

import (
	"errors"
	"testing"
)

func TestComponentError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *ComponentError
		expected string
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: "",
		},
		{
			name:     "component only",
			err:      &ComponentError{Component: "cache"},
			expected: "cache",
		},
		{
			name:     "component and action",
			err:      &ComponentError{Component: "cache", Action: "verify"},
			expected: "cache: verify",
		},
		{
			name:     "component and error",
			err:      &ComponentError{Component: "source", Err: errors.New("gone")},
			expected: "source: gone",
		},
		{
			name:     "full",
			err:      NewComponentError("cache", "verify", errors.New("size mismatch")),
			expected: "cache: verify: size mismatch",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.err.Error()
			if result != tt.expected {
				t.Errorf("Error() = '%s', expected '%s'", result, tt.expected)
			}
		})
	}
}

func TestComponentError_Unwrap(t *testing.T) {
	inner := errors.New("inner error")
	err := NewComponentError("scheduler", "close", inner)

	if !errors.Is(err, inner) {
		t.Error("errors.Is did not find inner error")
	}

	var nilErr *ComponentError
	if nilErr.Unwrap() != nil {
		t.Error("expected nil from Unwrap() on nil receiver")
	}
}

func TestInitError(t *testing.T) {
	inner := errors.New("no such directory")
	err := &InitError{Component: "source", Err: inner}

	if err.Error() != "init source: no such directory" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, inner) {
		t.Error("errors.Is did not find inner error")
	}
}

func TestErrorList(t *testing.T) {
	var list ErrorList
	if list.AsError() != nil {
		t.Error("empty list should be nil error")
	}

	list.Add(nil)
	if list.Len() != 0 {
		t.Errorf("Add(nil) should be ignored, len = %d", list.Len())
	}

	first := errors.New("first")
	list.Add(first)
	if list.Error() != "first" {
		t.Errorf("single error message = %q", list.Error())
	}

	list.Add(ErrQuit)
	err := list.AsError()
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "2 errors: first: first" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, first) || !errors.Is(err, ErrQuit) {
		t.Error("errors.Is should match every collected error")
	}
}
