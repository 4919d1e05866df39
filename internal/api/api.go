// Package api exposes the dispatch core's request/response surface as a
// set of typed procedures, grounded on the teacher's API struct that
// aggregates every service behind one entry point. §6 leaves transport
// encoding (HTTP, gRPC, in-process call) out of scope, so this package
// stops at the procedure boundary: each method takes a context and typed
// arguments and returns a typed result or a *dispatcherr.Error, with no
// framing, routing, or serialization of its own.
package api

import (
	"context"

	"github.com/abdulqdaer-q/porter-dispatch-core/internal/authctx"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/availability"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/earnings"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/hotstate"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/location"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/offer"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/porter"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/store"
)

// API aggregates every domain service behind one entry point, the single
// object a transport adapter (HTTP handler, gRPC server, CLI) needs to hold.
type API struct {
	Porter       *porter.Service
	Availability *availability.Service
	Location     *location.Service
	Offer        *offer.Service
	Earnings     *earnings.Service
}

func New(p *porter.Service, a *availability.Service, l *location.Service, o *offer.Service, e *earnings.Service) *API {
	return &API{Porter: p, Availability: a, Location: l, Offer: o, Earnings: e}
}

// RegisterPorterRequest/Response and the other Request/Response pairs below
// give each procedure a stable, serialization-agnostic shape, independent
// of the underlying service method's positional argument list.

type RegisterPorterRequest struct {
	UserID          string `json:"user_id"`
	ContactPhone    string `json:"contact_phone"`
	VehicleCategory string `json:"vehicle_category"`
	CorrelationID   string `json:"correlation_id,omitempty"`
}

func (a *API) RegisterPorter(ctx context.Context, req RegisterPorterRequest) (*store.PorterProfile, error) {
	return a.Porter.Register(ctx, req.UserID, req.ContactPhone, req.VehicleCategory, req.CorrelationID)
}

type SetAvailabilityRequest struct {
	PorterID      string  `json:"porter_id"`
	Online        bool    `json:"online"`
	Lat           float64 `json:"lat,omitempty"`
	Lng           float64 `json:"lng,omitempty"`
	HasCoord      bool    `json:"has_coord,omitempty"`
	CorrelationID string  `json:"correlation_id,omitempty"`
}

func (a *API) SetAvailability(ctx context.Context, principal authctx.Principal, req SetAvailabilityRequest) error {
	return a.Availability.SetAvailability(ctx, principal, req.PorterID, req.Online, req.Lat, req.Lng, req.HasCoord, req.CorrelationID)
}

type UpdateLocationRequest struct {
	PorterID      string  `json:"porter_id"`
	Lat           float64 `json:"lat"`
	Lng           float64 `json:"lng"`
	Accuracy      float64 `json:"accuracy,omitempty"`
	OrderID       string  `json:"order_id,omitempty"`
	CorrelationID string  `json:"correlation_id,omitempty"`
}

func (a *API) UpdateLocation(ctx context.Context, principal authctx.Principal, req UpdateLocationRequest) error {
	return a.Location.UpdateLocation(ctx, principal, req.PorterID, req.Lat, req.Lng, req.Accuracy, req.OrderID, req.CorrelationID)
}

type FindNearbyPortersRequest struct {
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
	RadiusMeters float64 `json:"radius_meters"`
	OnlineOnly   bool    `json:"online_only,omitempty"`
}

func (a *API) FindNearbyPorters(ctx context.Context, req FindNearbyPortersRequest) ([]location.NearbyPorter, error) {
	return a.Location.FindNearbyPorters(ctx, req.Lat, req.Lng, req.RadiusMeters, req.OnlineOnly)
}

type CreateOfferRequest struct {
	OrderID        string `json:"order_id"`
	PorterID       string `json:"porter_id"`
	CorrelationID  string `json:"correlation_id,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

func (a *API) CreateOffer(ctx context.Context, principal authctx.Principal, req CreateOfferRequest) (offer.CreateOfferResult, error) {
	return a.Offer.CreateOffer(ctx, principal, req.OrderID, req.PorterID, req.CorrelationID, req.IdempotencyKey)
}

type AcceptOfferRequest struct {
	OfferID        string `json:"offer_id"`
	PorterID       string `json:"porter_id"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// AcceptOffer is the critical path: see offer.Service.AcceptOffer.
func (a *API) AcceptOffer(ctx context.Context, principal authctx.Principal, req AcceptOfferRequest) (offer.AcceptResult, error) {
	return a.Offer.AcceptOffer(ctx, principal, req.OfferID, req.PorterID, req.IdempotencyKey)
}

type RejectOfferRequest struct {
	OfferID  string `json:"offer_id"`
	PorterID string `json:"porter_id"`
	Reason   string `json:"reason,omitempty"`
}

func (a *API) RejectOffer(ctx context.Context, principal authctx.Principal, req RejectOfferRequest) error {
	return a.Offer.RejectOffer(ctx, principal, req.OfferID, req.PorterID, req.Reason)
}

type RequestWithdrawalRequest struct {
	PorterID       string `json:"porter_id"`
	AmountMinor    int64  `json:"amount_minor"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

func (a *API) RequestWithdrawal(ctx context.Context, principal authctx.Principal, req RequestWithdrawalRequest) (earnings.WithdrawalResult, error) {
	return a.Earnings.RequestWithdrawal(ctx, principal, req.PorterID, req.AmountMinor, req.IdempotencyKey)
}

func (a *API) EarningsSummary(ctx context.Context, principal authctx.Principal, porterID string) (earnings.EarningsSummaryResult, error) {
	return a.Earnings.EarningsSummary(ctx, principal, porterID)
}

func (a *API) GetAvailability(ctx context.Context, porterID string) (*hotstate.AvailabilityState, error) {
	return a.Availability.GetAvailability(ctx, porterID)
}
