package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	stripe "github.com/stripe/stripe-go/v82"

	"github.com/printmint/cardpress/internal/apperr"
	"github.com/printmint/cardpress/internal/models"
	"github.com/printmint/cardpress/internal/service"
)

const maxWebhookBodyBytes = 1 << 20

type generateImageRequest struct {
	Prompt    string `json:"prompt"`
	ImageSize string `json:"imageSize"`
}

func (s *Server) handleGenerateImage(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r.Context())
	if !ok {
		s.renderError(w, r, apperr.Auth("authentication required"))
		return
	}

	var req generateImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.renderError(w, r, apperr.Validation("invalid JSON body"))
		return
	}

	result, err := s.generation.Generate(r.Context(), service.GenerationRequest{
		UserID:      identity.UserID,
		Email:       identity.Email,
		AccessToken: identity.AccessToken,
		Prompt:      req.Prompt,
		ImageSize:   req.ImageSize,
	})
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

type imageResponse struct {
	ID         int64     `json:"id"`
	Prompt     string    `json:"prompt"`
	ImageURL   string    `json:"imageUrl"`
	StorageURL string    `json:"storageUrl"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (s *Server) handleListImages(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r.Context())
	if !ok {
		s.renderError(w, r, apperr.Auth("authentication required"))
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.renderError(w, r, apperr.Validation("limit must be a positive integer"))
			return
		}
		limit = n
	}

	images, err := s.generation.ListImages(r.Context(), identity.UserID, limit)
	if err != nil {
		s.renderError(w, r, err)
		return
	}

	out := make([]imageResponse, 0, len(images))
	for _, img := range images {
		out = append(out, imageResponse{
			ID:         img.ID,
			Prompt:     img.Prompt,
			ImageURL:   img.ImageURL,
			StorageURL: img.StorageURL,
			Width:      img.Width,
			Height:     img.Height,
			CreatedAt:  img.CreatedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"images": out})
}

type checkoutRequest struct {
	OrderItems  []checkoutItem `json:"orderItems"`
	TotalAmount int            `json:"totalAmount"` // cents
}

type checkoutItem struct {
	ImageMetadataID *int64 `json:"imageMetadataId"`
	ImageName       string `json:"imageName"`
	ImageSrc        string `json:"imageSrc"`
	Size            string `json:"size"`
	Quantity        int    `json:"quantity"`
}

func (s *Server) handleCheckoutSession(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r.Context())
	if !ok {
		s.renderError(w, r, apperr.Auth("authentication required"))
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.renderError(w, r, apperr.Validation("invalid JSON body"))
		return
	}

	items := make([]service.OrderItem, 0, len(req.OrderItems))
	for _, item := range req.OrderItems {
		items = append(items, service.OrderItem{
			ImageMetadataID: item.ImageMetadataID,
			ImageName:       item.ImageName,
			ImageSrc:        item.ImageSrc,
			Size:            item.Size,
			Quantity:        item.Quantity,
		})
	}

	result, err := s.orders.CreateCheckout(r.Context(), identity.UserID, items, req.TotalAmount)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

type orderResponse struct {
	ID               string                 `json:"id"`
	UserID           string                 `json:"userId"`
	Status           models.OrderStatus     `json:"status"`
	PaymentSessionID string                 `json:"paymentSessionId"`
	TotalCents       int                    `json:"totalCents"`
	Prompt           string                 `json:"prompt,omitempty"`
	ImageURL         string                 `json:"imageUrl,omitempty"`
	PrintOptions     []printOptionsResponse `json:"printOptions"`
	CreatedAt        time.Time              `json:"createdAt"`
	UpdatedAt        time.Time              `json:"updatedAt"`
}

type printOptionsResponse struct {
	ImageName      string `json:"imageName"`
	ImageSrc       string `json:"imageSrc"`
	Size           string `json:"size"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int    `json:"unitPriceCents"`
}

func toOrderResponse(detail models.OrderDetail) orderResponse {
	opts := make([]printOptionsResponse, 0, len(detail.PrintOptions))
	for _, opt := range detail.PrintOptions {
		opts = append(opts, printOptionsResponse{
			ImageName:      opt.ImageName,
			ImageSrc:       opt.ImageSrc,
			Size:           opt.Size,
			Quantity:       opt.Quantity,
			UnitPriceCents: opt.UnitPriceCents,
		})
	}
	return orderResponse{
		ID:               detail.Order.ID,
		UserID:           detail.Order.UserID,
		Status:           detail.Order.Status,
		PaymentSessionID: detail.Order.PaymentSessionID,
		TotalCents:       detail.Order.TotalCents,
		Prompt:           detail.Prompt,
		ImageURL:         detail.ImageURL,
		PrintOptions:     opts,
		CreatedAt:        detail.Order.CreatedAt,
		UpdatedAt:        detail.Order.UpdatedAt,
	}
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	details, err := s.orders.List(r.Context())
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	out := make([]orderResponse, 0, len(details))
	for _, detail := range details {
		out = append(out, toOrderResponse(detail))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"orders": out})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	detail, err := s.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toOrderResponse(*detail))
}

type statusUpdateRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req statusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.renderError(w, r, apperr.Validation("invalid JSON body"))
		return
	}

	detail, err := s.orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"), models.OrderStatus(req.Status))
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toOrderResponse(*detail))
}

// handleStripeWebhook verifies the payment provider's signature and marks the
// matching order paid on checkout completion. Unknown event types are
// acknowledged so the provider stops redelivering them.
func (s *Server) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.log.Error("webhook payload over size limit", "limit", tooLarge.Limit)
			s.renderError(w, r, apperr.Validation("webhook payload too large"))
			return
		}
		s.renderError(w, r, apperr.Validation("read body error"))
		return
	}

	event, err := s.webhooks.ConstructWebhookEvent(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		s.log.Error("webhook signature verification failed", "err", err)
		s.renderError(w, r, apperr.Validation("invalid webhook signature"))
		return
	}

	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			s.renderError(w, r, apperr.Validation("malformed webhook payload"))
			return
		}
		if err := s.orders.MarkPaid(r.Context(), sess.ID); err != nil {
			if apperr.From(err).Status == http.StatusNotFound {
				// Acknowledge sessions this deployment never created, or
				// the provider will retry forever.
				s.log.Warn("webhook for unknown payment session", "session", sess.ID)
				break
			}
			s.renderError(w, r, err)
			return
		}
		s.log.Info("order marked paid", "session", sess.ID)
	default:
		s.log.Info("ignoring webhook event", "type", event.Type)
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"received": "true"})
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, err error) {
	ae := apperr.From(err)
	if ae.Status >= http.StatusInternalServerError {
		s.log.Error("request failed", "path", r.URL.Path, "err", err)
	}
	apperr.Render(w, middleware.GetReqID(r.Context()), err)
}
