package errors_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	should "github.com/stretchr/testify/assert"
	must "github.com/stretchr/testify/require"

	errutil "github.com/etruckzm/etruck-go/libs/errors"
	testutils "github.com/etruckzm/etruck-go/libs/test"
)

type customErr struct{}

func (ce *customErr) Error() string {
	return "custom error"
}

type notFoundErr string

func (e notFoundErr) Error() string       { return string(e) }
func (e notFoundErr) NotFoundError() bool { return true }

func TestMultiError(t *testing.T) {
	var (
		err1b = errors.New("error 1b")
		err1a = fmt.Errorf("error 1a: %w", err1b)
		err1  = fmt.Errorf("error 1: %w", err1a)
		err2  = errors.New("error 2")
		err3  = &customErr{}
	)

	merr := &errutil.MultiError{}
	merr.Append(err1, nil, err2, err3)

	must.Equal(t, 3, merr.Count())

	var myCustomErr *customErr
	should.True(t, errors.As(merr, &myCustomErr))
	should.ErrorIs(t, merr, err1a)
	should.ErrorIs(t, merr, err1b)
	should.ErrorIs(t, merr, err2)
	should.Equal(t, "error 1: error 1a: error 1b; error 2; custom error", merr.Error())
}

func TestMultiError_ErrOrNil(t *testing.T) {
	merr := &errutil.MultiError{}
	should.NoError(t, merr.ErrOrNil())

	merr.Append(errors.New("boom"))
	should.Error(t, merr.ErrOrNil())
}

func TestErrorBundle_DataToString_DataNil(t *testing.T) {
	err := errutil.Wrap(errors.New(testutils.RandomString()), testutils.RandomString())

	var actual *errutil.ErrorBundle
	must.True(t, errors.As(err, &actual))
	should.Equal(t, "no error bundle data", actual.DataToString())
}

func TestErrorBundle_DataToString_MarshallError(t *testing.T) {
	unsupportedData := func() {}
	sut := errutil.New(errors.New(testutils.RandomString()), testutils.RandomString(), unsupportedData)

	var actual *errutil.ErrorBundle
	must.True(t, errors.As(sut, &actual))
	should.Contains(t, actual.DataToString(), "error retrieving error bundle data")
}

func TestErrorBundle_DataToString(t *testing.T) {
	errorData := testutils.RandomString()
	sut := errutil.New(errors.New(testutils.RandomString()), testutils.RandomString(), errorData)

	expected, err := json.Marshal(errorData)
	must.NoError(t, err)

	var actual *errutil.ErrorBundle
	must.True(t, errors.As(sut, &actual))
	should.Equal(t, string(expected), actual.DataToString())
}

func TestHelpers(t *testing.T) {
	wrapped := fmt.Errorf("lookup: %w", notFoundErr("missing"))

	should.True(t, errutil.IsErrNotFound(wrapped))
	should.False(t, errutil.IsErrNotFound(errors.New("other")))
	should.False(t, errutil.IsErrAlreadyExists(wrapped))
}
