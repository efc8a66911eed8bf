package controller

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/meridian-studio/ms-go-billing/app/factory"
	"github.com/meridian-studio/ms-go-billing/app/mapper"
	"github.com/meridian-studio/ms-go-billing/app/service"
	"github.com/meridian-studio/ms-go-billing/app/types"
)

// stripeSignatureHeader carries the processor's HMAC over the raw body.
const stripeSignatureHeader = "Stripe-Signature"

// maxWebhookBodyBytes bounds webhook payloads before any parsing happens.
const maxWebhookBodyBytes = 64 * 1024

type BillingController struct {
	billingService *service.BillingService
	logger         logrus.FieldLogger
}

func NewBillingController(billingService *service.BillingService) *BillingController {
	return &BillingController{
		billingService: billingService,
		logger:         factory.NewModuleLogger("billing-controller"),
	}
}

func (c *BillingController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

// HandleStripeWebhook acknowledges with 200 only after every domain mutation
// and the idempotency ledger write succeeded. 4xx is reserved for signature
// problems; anything transient gets a 5xx so the processor retries.
func (c *BillingController) HandleStripeWebhook(ctx echo.Context) error {
	signature := strings.TrimSpace(ctx.Request().Header.Get(stripeSignatureHeader))
	if signature == "" {
		return c.writeError(ctx, http.StatusBadRequest, "missing webhook signature")
	}

	body := http.MaxBytesReader(ctx.Response(), ctx.Request().Body, maxWebhookBodyBytes)
	payload, err := io.ReadAll(body)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "unreadable webhook payload")
	}

	receipt, err := c.billingService.HandleStripeWebhook(ctx.Request().Context(), payload, signature)
	if err != nil {
		if errors.Is(err, service.ErrSignatureInvalid) {
			return c.writeError(ctx, http.StatusBadRequest, "webhook signature verification failed")
		}
		c.logger.WithError(err).Error("Webhook processing failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.WebhookReceiptResponse{Received: true, Duplicate: receipt.Duplicate})
}

func (c *BillingController) CreateCheckout(ctx echo.Context) error {
	req, err := types.NewCreateCheckoutRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	output, err := c.billingService.CreateCheckoutSession(ctx.Request().Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		}
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Create checkout session failed")
		return c.writeError(ctx, http.StatusBadGateway, "payment processor unavailable")
	}

	return ctx.JSON(http.StatusCreated, &types.CheckoutSessionResponse{
		SessionID:   output.SessionID,
		CheckoutURL: output.CheckoutURL,
	})
}

func (c *BillingController) GetCustomer(ctx echo.Context) error {
	userID := strings.TrimSpace(ctx.Param("userId"))
	if userID == "" {
		return c.writeError(ctx, http.StatusBadRequest, "user id is required")
	}

	item, err := c.billingService.GetCustomerByUserID(ctx.Request().Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrCustomerNotFound) {
			return c.writeError(ctx, http.StatusNotFound, "customer not found")
		}
		c.logger.WithError(err).Error("Get customer failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.CustomerEnvelopeResponse{Customer: mapper.CustomerToResponse(item)})
}

func (c *BillingController) GetSubscription(ctx echo.Context) error {
	subscriptionID := strings.TrimSpace(ctx.Param("subscriptionId"))
	if subscriptionID == "" {
		return c.writeError(ctx, http.StatusBadRequest, "subscription id is required")
	}

	item, err := c.billingService.GetSubscription(ctx.Request().Context(), subscriptionID)
	if err != nil {
		if errors.Is(err, service.ErrSubscriptionNotFound) {
			return c.writeError(ctx, http.StatusNotFound, "subscription not found")
		}
		c.logger.WithError(err).Error("Get subscription failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.SubscriptionEnvelopeResponse{Subscription: mapper.SubscriptionToResponse(item)})
}

// GetUserSubscription serves the account page: latest subscription for an
// internal user, regardless of processor id.
func (c *BillingController) GetUserSubscription(ctx echo.Context) error {
	userID := strings.TrimSpace(ctx.Param("userId"))
	if userID == "" {
		return c.writeError(ctx, http.StatusBadRequest, "user id is required")
	}

	item, err := c.billingService.GetSubscriptionByUserID(ctx.Request().Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrSubscriptionNotFound) {
			return c.writeError(ctx, http.StatusNotFound, "subscription not found")
		}
		c.logger.WithError(err).Error("Get user subscription failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.SubscriptionEnvelopeResponse{Subscription: mapper.SubscriptionToResponse(item)})
}

func (c *BillingController) ListPayments(ctx echo.Context) error {
	customerID := strings.TrimSpace(ctx.Param("customerId"))
	if customerID == "" {
		return c.writeError(ctx, http.StatusBadRequest, "customer id is required")
	}

	var limit int32
	if raw := strings.TrimSpace(ctx.QueryParam("limit")); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || parsed <= 0 {
			return c.writeError(ctx, http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = int32(parsed)
	}

	items, err := c.billingService.ListCustomerPayments(ctx.Request().Context(), customerID, limit)
	if err != nil {
		c.logger.WithError(err).Error("List payments failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.ListPaymentsResponse{Payments: mapper.PaymentsToResponse(items)})
}

func (c *BillingController) writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message})
}
