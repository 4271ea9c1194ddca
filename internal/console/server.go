// Package console serves the derived view-state over HTTP: read-only JSON
// projections of the session stores, a health check, and Prometheus metrics.
package console

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/prescripto/clinic-console/internal/admin"
	"github.com/prescripto/clinic-console/internal/api"
	"github.com/prescripto/clinic-console/internal/doctor"
	"github.com/prescripto/clinic-console/internal/notify"
	"github.com/prescripto/clinic-console/internal/orders"
	"github.com/prescripto/clinic-console/internal/stats"
	"github.com/prescripto/clinic-console/pkg/logging"
)

// Config holds the dependencies the console surface renders from.
type Config struct {
	Logger         *logging.Logger
	Admin          *admin.Store
	Doctor         *doctor.Store
	Orders         *orders.Store
	Feed           *notify.Recorder
	MetricsHandler http.Handler
	TrendMonths    int
}

type server struct {
	cfg   *Config
	clock func() time.Time
}

// New creates the console router.
func New(cfg *Config) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.TrendMonths <= 0 {
		cfg.TrendMonths = 6
	}
	s := &server{cfg: cfg, clock: time.Now}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	r.Route("/admin", func(r chi.Router) {
		r.Get("/overview", s.adminOverview)
		r.Get("/appointments", s.adminAppointments)
		r.Get("/doctors", s.adminDoctors)
		r.Get("/patients", s.adminPatients)
	})
	r.Route("/doctor", func(r chi.Router) {
		r.Get("/overview", s.doctorOverview)
		r.Get("/appointments", s.doctorAppointments)
	})
	r.Get("/orders", s.listOrders)
	r.Get("/notifications", s.notifications)

	return r
}

func (s *server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.cfg.Logger.Error("console: encode response", "error", err)
	}
}

func (s *server) health(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// appointmentView is one appointment enriched with its derived display
// fields. PatientAge is null when the date of birth is missing; the front
// shows a dash, never a guess.
type appointmentView struct {
	api.Appointment
	Status        api.Status `json:"status"`
	SlotDateLabel string     `json:"slotDateLabel"`
	PatientAge    *int       `json:"patientAge"`
}

func (s *server) appointmentViews(appts []api.Appointment) []appointmentView {
	now := s.clock()
	views := make([]appointmentView, 0, len(appts))
	for _, a := range appts {
		v := appointmentView{
			Appointment:   a,
			Status:        a.Status(),
			SlotDateLabel: stats.FormatSlotDate(a.SlotDate),
		}
		if age, ok := stats.Age(a.UserData.DateOfBirth, now); ok {
			v.PatientAge = &age
		}
		views = append(views, v)
	}
	return views
}

func (s *server) adminOverview(w http.ResponseWriter, _ *http.Request) {
	appts := s.cfg.Admin.Appointments()
	dash, hasDash := s.cfg.Admin.Dashboard()

	trend := stats.MonthlyTrend(appts, s.clock(), s.cfg.TrendMonths)
	resp := map[string]any{
		"summary":          stats.Summarize(appts),
		"trend":            trend,
		"userDistribution": stats.UserDistribution(dash),
		"recentActivity":   dash.RecentActivity,
		"counts": map[string]int{
			"doctors":      dash.Doctors,
			"appointments": dash.Appointments,
			"patients":     dash.Patients,
		},
		"dashboardFetched": hasDash,
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *server) adminAppointments(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	appts := stats.FilterByPatientName(s.cfg.Admin.Appointments(), query)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"summary":      stats.Summarize(appts),
		"appointments": s.appointmentViews(appts),
	})
}

func (s *server) adminDoctors(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"doctors": s.cfg.Admin.Doctors(),
	})
}

func (s *server) adminPatients(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"patients": s.cfg.Admin.Patients(),
	})
}

func (s *server) doctorOverview(w http.ResponseWriter, _ *http.Request) {
	profile, hasProfile := s.cfg.Doctor.Profile()
	appts := s.cfg.Doctor.Appointments()

	resp := map[string]any{
		"summary":      stats.Summarize(appts),
		"trend":        stats.MonthlyTrend(appts, s.clock(), s.cfg.TrendMonths),
		"distribution": stats.Distribution(appts),
		"nextUp":       s.appointmentViews(stats.UpcomingSoonest(appts, 3)),
	}
	if hasProfile {
		resp["doctor"] = profile
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *server) doctorAppointments(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	appts := stats.FilterByPatientName(s.cfg.Doctor.Appointments(), query)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"summary":      stats.Summarize(appts),
		"appointments": s.appointmentViews(appts),
	})
}

// orderView is one order plus its payment badge.
type orderView struct {
	api.Order
	PaymentBadge stats.PaymentBadge `json:"paymentBadge"`
}

func (s *server) listOrders(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	filtered := s.cfg.Orders.FilterByStatus(status)
	views := make([]orderView, 0, len(filtered))
	for _, o := range filtered {
		views = append(views, orderView{Order: o, PaymentBadge: stats.ClassifyPayment(o.Payment)})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"orders": views})
}

func (s *server) notifications(w http.ResponseWriter, _ *http.Request) {
	if s.cfg.Feed == nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"notifications": []notify.Notification{}})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"notifications": s.cfg.Feed.Notifications(),
	})
}
