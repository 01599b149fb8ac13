package errors

import "errors"

// IsErrNotFound is a helper method for determining if an error indicates a missing resource
func IsErrNotFound(err error) bool {
	type notFound interface {
		NotFoundError() bool
	}
	var te notFound
	return errors.As(err, &te) && te.NotFoundError()
}

// IsErrInvalidSignature is a helper method for determining if an error indicates there was an invalid signature
func IsErrInvalidSignature(err error) bool {
	type invalidSignature interface {
		InvalidSignature() bool
	}
	var te invalidSignature
	return errors.As(err, &te) && te.InvalidSignature()
}

// IsErrAlreadyExists is a helper method for determining if an error indicates the resource already exists
func IsErrAlreadyExists(err error) bool {
	type alreadyExists interface {
		AlreadyExistsError() bool
	}
	var te alreadyExists
	return errors.As(err, &te) && te.AlreadyExistsError()
}
