package testutils

import "testing"

var t *testing.T

// SetT sets the current test context for NoErr/Err helpers.
func SetT(test *testing.T) {
	t = test
}

// NoErr fails the test if err is non-nil, and passes through the value.
func NoErr[T any](value T, err error) T {
	if err != nil {
		t.Helper()
		t.Fatalf("unexpected error: %v", err)
	}
	return value
}

// Err fails the test if err is nil.
func Err[T any](_ T, err error) error {
	if err == nil {
		t.Helper()
		t.Fatal("expected an error")
	}
	return err
}
