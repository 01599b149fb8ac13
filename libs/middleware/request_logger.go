package middleware

// RequestLogger started life as the lg RequestLogger (BSD licensed, lg authors)
// and was reworked around zerolog/hlog with sentry panic reporting.

import (
	"fmt"
	"net/http"
	"regexp"
	"runtime/debug"
	"time"

	"github.com/etruckzm/etruck-go/libs/handlers"
	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

var ipPortRE = regexp.MustCompile(`[0-9]+(?:\.[0-9]+){3}(:[0-9]+)?`)

// RequestLogger logs at the start and stop of incoming HTTP requests as well as recovers from panics
func RequestLogger(logger *zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			if r.URL.EscapedPath() == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			t1 := time.Now().UTC()
			logger := hlog.FromRequest(r)
			createSubLog(logger, r, 0).Msg("request started")

			defer func() {
				t2 := time.Now().UTC()

				if rec := recover(); rec != nil {
					logger.Error().Str("panic", fmt.Sprintf("%+v", rec)).Str("stacktrace", string(debug.Stack())).Msg("panic recovered")

					// group panics that only differ by peer address
					m := ipPortRE.ReplaceAllString(fmt.Sprint(rec), "x.x.x.x:xxxx")

					event := sentry.NewEvent()
					event.Message = m
					sentry.CaptureEvent(event)

					(&handlers.AppError{
						Message:   http.StatusText(http.StatusInternalServerError),
						ErrorCode: "internal_error",
						Code:      http.StatusInternalServerError,
					}).ServeHTTP(ww, r)
				}

				status := ww.Status()
				createSubLog(logger, r, status).
					Int("status", status).
					Int("size", ww.BytesWritten()).
					Dur("duration", t2.Sub(t1)).
					Msg("request complete")
			}()

			r = r.WithContext(logger.WithContext(r.Context()))
			next.ServeHTTP(ww, r)
		}
		return http.HandlerFunc(fn)
	}
}

func createSubLog(logger *zerolog.Logger, r *http.Request, status int) *zerolog.Event {
	var result *zerolog.Event

	switch {
	case status >= 400 && status <= 499:
		result = logger.Warn()
	case status >= 500:
		result = logger.Error()
	default:
		result = logger.Info()
	}

	result = result.Str("host", r.Host).
		Str("http_proto", r.Proto).
		Str("http_method", r.Method).
		Str("uri", r.URL.EscapedPath())

	if extReqID := r.Header.Get("X-Request-ID"); extReqID != "" {
		result = result.Str("x_request_id", extReqID)
	}

	return result
}
