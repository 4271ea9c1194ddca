// Package orders holds the medicine-delivery order list. Order endpoints sit
// outside the role-credentialed API surface, so requests here carry no token.
package orders

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prescripto/clinic-console/internal/api"
	"github.com/prescripto/clinic-console/internal/notify"
	"github.com/prescripto/clinic-console/internal/observability/metrics"
	"github.com/prescripto/clinic-console/internal/stats"
	"github.com/prescripto/clinic-console/pkg/logging"
)

// Backend is the slice of the API client the orders store uses.
type Backend interface {
	Get(ctx context.Context, path string, cred api.Credential, out any) error
	Put(ctx context.Context, path string, cred api.Credential, body, out any) error
}

// Store is the delivery-order state store.
type Store struct {
	client   Backend
	notifier notify.Notifier
	metrics  *metrics.ConsoleMetrics
	logger   *logging.Logger

	lifecycle context.Context
	close     context.CancelFunc

	mu     sync.RWMutex
	orders []api.Order
}

// NewStore constructs an orders store. m may be nil; a nil notifier falls
// back to the log.
func NewStore(client Backend, notifier notify.Notifier, m *metrics.ConsoleMetrics, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}
	lifecycle, cancel := context.WithCancel(context.Background())
	return &Store{
		client:    client,
		notifier:  notifier,
		metrics:   m,
		logger:    logger,
		lifecycle: lifecycle,
		close:     cancel,
	}
}

// Close tears the store down and cancels in-flight requests.
func (s *Store) Close() {
	s.close()
}

func (s *Store) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	reqCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.lifecycle, cancel)
	return reqCtx, func() {
		stop()
		cancel()
	}
}

func (s *Store) closed() bool {
	return s.lifecycle.Err() != nil
}

func userMessage(err error) string {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return "could not reach the clinic backend"
}

// FetchOrders replaces the order list wholesale.
func (s *Store) FetchOrders(ctx context.Context) {
	reqCtx, done := s.requestContext(ctx)
	defer done()

	var payload struct {
		Orders []api.Order `json:"orders"`
	}
	start := time.Now()
	err := s.client.Get(reqCtx, "/api/orders", api.Credential{}, &payload)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.metrics.ObserveRequest("none", outcome, time.Since(start).Seconds())
	if err != nil {
		s.logger.Warn("orders: fetch", "error", err)
		s.notifier.Error(userMessage(err))
		return
	}
	if s.closed() {
		return
	}

	s.mu.Lock()
	s.orders = payload.Orders
	s.mu.Unlock()
}

// UpdateStatus moves an order to a new delivery state. An invalid target
// state is a validation failure and sends nothing; an order already in the
// target state is a no-op. On success the order is patched locally.
func (s *Store) UpdateStatus(ctx context.Context, orderID string, status api.OrderStatus) {
	if !status.Valid() {
		s.notifier.Error("Invalid delivery status: " + string(status))
		return
	}
	if current, ok := s.order(orderID); ok && current.Status == status {
		s.logger.Debug("orders: already in target status", "order_id", orderID, "status", status)
		return
	}

	reqCtx, done := s.requestContext(ctx)
	defer done()

	start := time.Now()
	err := s.client.Put(reqCtx, "/api/orders/update-status", api.Credential{}, map[string]any{
		"orderId": orderID,
		"status":  status,
	}, nil)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.metrics.ObserveRequest("none", outcome, time.Since(start).Seconds())
	s.metrics.ObserveDispatch("update_order_status", outcome)
	if err != nil {
		s.logger.Warn("orders: update status", "error", err, "order_id", orderID)
		s.notifier.Error(userMessage(err))
		return
	}
	if s.closed() {
		return
	}

	s.mu.Lock()
	for i := range s.orders {
		if s.orders[i].ID == orderID {
			s.orders[i].Status = status
			break
		}
	}
	s.mu.Unlock()
	s.notifier.Success("Order status updated")
}

func (s *Store) order(orderID string) (api.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.orders {
		if o.ID == orderID {
			return o, true
		}
	}
	return api.Order{}, false
}

// Orders returns a copy of the order list.
func (s *Store) Orders() []api.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]api.Order, len(s.orders))
	copy(out, s.orders)
	return out
}

// FilterByStatus projects the order list through the status filter.
func (s *Store) FilterByStatus(status string) []api.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return stats.FilterOrdersByStatus(s.orders, status)
}
