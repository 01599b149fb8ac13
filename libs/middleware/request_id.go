package middleware

import (
	"context"
	"crypto/sha256"
	"net/http"

	"github.com/etruckzm/etruck-go/libs/requestutils"
	uuid "github.com/satori/go.uuid"
	"github.com/shengdoushi/base58"
)

// NewRequestID returns a short random request id
func NewRequestID() string {
	sum := sha256.Sum256(uuid.NewV4().Bytes())
	return base58.Encode(sum[:], base58.BitcoinAlphabet)[:16]
}

// RequestIDTransfer transfers the request id from header to context
func RequestIDTransfer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(requestutils.RequestIDHeaderKey)
		if reqID == "" {
			reqID = NewRequestID()
		}
		w.Header().Set(requestutils.RequestIDHeaderKey, reqID)
		ctx := context.WithValue(r.Context(), requestutils.RequestID, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
