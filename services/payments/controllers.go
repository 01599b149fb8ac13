package payments

import (
	"github.com/go-chi/chi"

	"github.com/etruckzm/etruck-go/libs/handlers"
	"github.com/etruckzm/etruck-go/libs/middleware"
	"github.com/etruckzm/etruck-go/services/payments/handler"
)

// WebhookPrefix is the path prefix of provider callbacks once the router is mounted at /v1,
// it is exempt from rate limiting.
const WebhookPrefix = "/v1/webhooks"

// Router returns the routes of the payments API, to be mounted at /v1.
func Router(svc *Service) chi.Router {
	r := chi.NewRouter()

	pay := handler.NewPayment(svc)
	hook := handler.NewWebhook(svc)
	card := handler.NewECard(svc)

	r.Route("/payments", func(pr chi.Router) {
		pr.Method("POST", "/", middleware.InstrumentHandler("CreatePayment", handlers.AppHandler(pay.Create)))
		pr.Method("POST", "/verify", middleware.InstrumentHandler("VerifyPayment", handlers.AppHandler(pay.Verify)))
		pr.Method("GET", "/{reference}", middleware.InstrumentHandler("GetPayment", handlers.AppHandler(pay.Get)))
		pr.Method("DELETE", "/{reference}/watch", middleware.InstrumentHandler("CancelPaymentWatch", handlers.AppHandler(pay.CancelWatch)))
	})

	r.Method("POST", "/webhooks/{provider}", middleware.InstrumentHandler("PaymentWebhook", handlers.AppHandler(hook.Handle)))

	r.Route("/ecards", func(er chi.Router) {
		er.Method("POST", "/verify", middleware.InstrumentHandler("VerifyECard", handlers.AppHandler(card.Verify)))
		er.Method("GET", "/{cardID}", middleware.InstrumentHandler("GetECard", handlers.AppHandler(card.Get)))
	})

	return r
}
