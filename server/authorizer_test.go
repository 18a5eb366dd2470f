package server

import (
	"testing"

	"github.com/flusio/minz-worker/test"
)

func TestAddUserAuthsUser(t *testing.T) {
	AddUser("foo", "bar")
	err := DefaultAuthorizer.Authorize("foo", "bar")
	test.Assert(t, err == nil, "expected foo to be authorized")

	err = DefaultAuthorizer.Authorize("foo", "wrongpassword")
	test.Assert(t, err != nil, "expected an error")
	test.AssertEquals(t, err.Error(), "Incorrect password for user foo")
	test.AssertEquals(t, err.ID, "incorrect_password")

	err = DefaultAuthorizer.Authorize("Unknownuser", "wrongpassword")
	test.Assert(t, err != nil, "expected an error")
	test.AssertEquals(t, err.Error(), "Username or password are invalid. Please double check your credentials")

	err = DefaultAuthorizer.Authorize("", "")
	test.Assert(t, err != nil, "expected an error")
	test.AssertEquals(t, err.ID, "missing_authentication")
}
