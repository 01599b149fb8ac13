package context

import (
	"context"

	"github.com/rs/zerolog"
)

// GetStringFromContext - given a CTXKey return the string value from the context if it exists
func GetStringFromContext(ctx context.Context, key CTXKey) (string, error) {
	v := ctx.Value(key)
	if v == nil {
		// value not on context
		return "", ErrNotInContext
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	// value not a string
	return "", ErrValueWrongType
}

// GetLogLevelFromContext - given a CTXKey return the log level from the context, defaults to info
func GetLogLevelFromContext(ctx context.Context, key CTXKey) (zerolog.Level, error) {
	v := ctx.Value(key)
	if v == nil {
		return zerolog.InfoLevel, ErrNotInContext
	}
	if l, ok := v.(zerolog.Level); ok {
		return l, nil
	}
	return zerolog.InfoLevel, ErrValueWrongType
}

// GetLogger - return the logger attached to the context if it exists
func GetLogger(ctx context.Context) (*zerolog.Logger, error) {
	l := zerolog.Ctx(ctx)
	// zerolog hands back a disabled logger when nothing is attached
	if l == nil || l.GetLevel() == zerolog.Disabled {
		return nil, ErrNotInContext
	}
	return l, nil
}
