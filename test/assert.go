// Package test contains helpers for writing tests.
package test

import (
	"time"

	"github.com/stretchr/testify/require"
)

// Assert fails the test if result is false.
func Assert(t require.TestingT, result bool, message string) {
	if h, ok := t.(interface{ Helper() }); ok {
		h.Helper()
	}
	require.True(t, result, message)
}

// AssertEquals fails the test if actual != expected.
func AssertEquals(t require.TestingT, actual, expected interface{}) {
	if h, ok := t.(interface{ Helper() }); ok {
		h.Helper()
	}
	require.Equal(t, expected, actual)
}

// AssertDeepEquals is like AssertEquals, but for slices, maps and structs
// without comparable fields.
func AssertDeepEquals(t require.TestingT, actual, expected interface{}) {
	if h, ok := t.(interface{ Helper() }); ok {
		h.Helper()
	}
	require.EqualValues(t, expected, actual)
}

func AssertNotError(t require.TestingT, err error, message string) {
	if h, ok := t.(interface{ Helper() }); ok {
		h.Helper()
	}
	require.NoError(t, err, message)
}

func AssertError(t require.TestingT, err error, message string) {
	if h, ok := t.(interface{ Helper() }); ok {
		h.Helper()
	}
	require.Error(t, err, message)
}

// AssertErrorIs fails the test unless errors.Is(err, target).
func AssertErrorIs(t require.TestingT, err, target error) {
	if h, ok := t.(interface{ Helper() }); ok {
		h.Helper()
	}
	require.ErrorIs(t, err, target)
}

// AssertTimeEquals compares two instants, ignoring their location.
func AssertTimeEquals(t require.TestingT, actual, expected time.Time) {
	if h, ok := t.(interface{ Helper() }); ok {
		h.Helper()
	}
	require.True(t, actual.Equal(expected), "expected %v, got %v", expected, actual)
}
