// Package doctor holds a doctor's session state: their credential, their own
// profile, and their appointment list. Unlike the admin store, fields owned
// solely by the doctor are patched optimistically instead of refetched.
package doctor

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

// CredentialStore persists the session token across restarts.
type CredentialStore interface {
	Save(ctx context.Context, role api.Role, token string) error
	Load(ctx context.Context, role api.Role) (string, error)
	Clear(ctx context.Context, role api.Role) error
}

// Backend is the slice of the API client the doctor store uses.
type Backend interface {
	Get(ctx context.Context, path string, cred api.Credential, out any) error
	Post(ctx context.Context, path string, cred api.Credential, body, out any) error
}

// Store is the doctor session state store.
type Store struct {
	client   Backend
	creds    CredentialStore
	notifier notify.Notifier
	metrics  *metrics.ConsoleMetrics
	logger   *logging.Logger

	lifecycle context.Context
	close     context.CancelFunc

	mu           sync.RWMutex
	token        string
	profile      *api.Doctor
	appointments []api.Appointment
}

// NewStore constructs a doctor store. creds and m may be nil; a nil notifier
// falls back to the log.
func NewStore(client Backend, creds CredentialStore, notifier notify.Notifier, m *metrics.ConsoleMetrics, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}
	lifecycle, cancel := context.WithCancel(context.Background())
	return &Store{
		client:    client,
		creds:     creds,
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

// SetCredential overwrites the credential and, when a token is present,
// eagerly refreshes profile and appointments together.
func (s *Store) SetCredential(ctx context.Context, token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	if s.creds != nil {
		if token == "" {
			if err := s.creds.Clear(ctx, api.RoleDoctor); err != nil {
				s.logger.Warn("doctor: clear persisted credential", "error", err)
			}
		} else if err := s.creds.Save(ctx, api.RoleDoctor, token); err != nil {
			s.logger.Warn("doctor: persist credential", "error", err)
		}
	}

	if token != "" {
		s.Refresh(ctx)
	}
}

// RestoreCredential loads a previously persisted credential into memory and
// refreshes when one is found.
func (s *Store) RestoreCredential(ctx context.Context) error {
	if s.creds == nil {
		return nil
	}
	token, err := s.creds.Load(ctx, api.RoleDoctor)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	if token != "" {
		s.Refresh(ctx)
	}
	return nil
}

// Credential returns the current session token.
func (s *Store) Credential() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Store) cred() api.Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return api.Credential{Role: api.RoleDoctor, Token: s.token}
}

func userMessage(err error) string {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return "could not reach the clinic backend"
}

func (s *Store) observe(action string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.metrics.ObserveRequest(string(api.RoleDoctor), outcome, time.Since(start).Seconds())
	if action != "" {
		s.metrics.ObserveDispatch(action, outcome)
	}
}

// Refresh performs the combined profile + appointments fetch.
func (s *Store) Refresh(ctx context.Context) {
	s.FetchProfile(ctx)
	s.FetchAppointments(ctx)
}

// FetchProfile replaces the doctor's own profile.
func (s *Store) FetchProfile(ctx context.Context) {
	reqCtx, done := s.requestContext(ctx)
	defer done()

	var payload struct {
		Doctor api.Doctor `json:"doctor"`
	}
	start := time.Now()
	err := s.client.Get(reqCtx, "/api/doctor/profile", s.cred(), &payload)
	s.observe("", start, err)
	if err != nil {
		s.logger.Warn("doctor: fetch profile", "error", err)
		s.notifier.Error(userMessage(err))
		return
	}
	if s.closed() {
		return
	}

	s.mu.Lock()
	s.profile = &payload.Doctor
	s.mu.Unlock()
}

// FetchAppointments replaces the doctor's appointment list.
func (s *Store) FetchAppointments(ctx context.Context) {
	reqCtx, done := s.requestContext(ctx)
	defer done()

	var payload struct {
		Appointments []api.Appointment `json:"appointments"`
	}
	start := time.Now()
	err := s.client.Get(reqCtx, "/api/doctor/appointments", s.cred(), &payload)
	s.observe("", start, err)
	if err != nil {
		s.logger.Warn("doctor: fetch appointments", "error", err)
		s.notifier.Error(userMessage(err))
		return
	}
	if s.closed() {
		return
	}

	s.mu.Lock()
	s.appointments = payload.Appointments
	s.mu.Unlock()
}

// MarkCompleted marks an appointment completed. An already-completed
// appointment is a no-op: no request is issued and state is unchanged. On
// success the list is patched locally rather than refetched; the list is
// owned by this doctor alone.
func (s *Store) MarkCompleted(ctx context.Context, appointmentID string) {
	if a, ok := s.appointment(appointmentID); ok && a.IsCompleted {
		s.logger.Debug("doctor: appointment already completed", "appointment_id", appointmentID)
		return
	}

	reqCtx, done := s.requestContext(ctx)
	defer done()

	start := time.Now()
	err := s.client.Post(reqCtx, "/api/doctor/mark-completed", s.cred(), map[string]any{"appointmentId": appointmentID}, nil)
	s.observe("mark_completed", start, err)
	if err != nil {
		s.logger.Warn("doctor: mark completed", "error", err, "appointment_id", appointmentID)
		s.notifier.Error(userMessage(err))
		return
	}
	if s.closed() {
		return
	}

	s.patchAppointment(appointmentID, func(a *api.Appointment) {
		a.IsCompleted = true
	})
	s.notifier.Success("Marked as completed")
}

// CancelAppointment cancels one of the doctor's appointments. An
// already-cancelled appointment is a no-op.
func (s *Store) CancelAppointment(ctx context.Context, appointmentID string) {
	if a, ok := s.appointment(appointmentID); ok && a.Cancelled {
		s.logger.Debug("doctor: appointment already cancelled", "appointment_id", appointmentID)
		return
	}

	reqCtx, done := s.requestContext(ctx)
	defer done()

	start := time.Now()
	err := s.client.Post(reqCtx, "/api/doctor/cancel-appointment", s.cred(), map[string]any{"appointmentId": appointmentID}, nil)
	s.observe("cancel_appointment", start, err)
	if err != nil {
		s.logger.Warn("doctor: cancel appointment", "error", err, "appointment_id", appointmentID)
		s.notifier.Error(userMessage(err))
		return
	}
	if s.closed() {
		return
	}

	s.patchAppointment(appointmentID, func(a *api.Appointment) {
		a.Cancelled = true
	})
	s.notifier.Error("Appointment cancelled")
}

// ToggleAvailability flips the doctor's own availability. The server's
// returned record wins when present; otherwise the flag is flipped locally.
func (s *Store) ToggleAvailability(ctx context.Context) {
	s.mu.RLock()
	profile := s.profile
	s.mu.RUnlock()
	if profile == nil {
		s.notifier.Error("No doctor profile loaded")
		return
	}

	reqCtx, done := s.requestContext(ctx)
	defer done()

	var payload struct {
		Doctor *api.Doctor `json:"doctor"`
	}
	start := time.Now()
	err := s.client.Post(reqCtx, "/api/doctor/change-availability", s.cred(), map[string]any{"docId": profile.ID}, &payload)
	s.observe("toggle_availability", start, err)
	if err != nil {
		s.logger.Warn("doctor: toggle availability", "error", err)
		s.notifier.Error(userMessage(err))
		return
	}
	if s.closed() {
		return
	}

	s.mu.Lock()
	if payload.Doctor != nil {
		s.profile = payload.Doctor
	} else if s.profile != nil {
		flipped := *s.profile
		flipped.Available = !flipped.Available
		s.profile = &flipped
	}
	s.mu.Unlock()
	s.notifier.Success("Availability updated successfully!")
}

// UpdateProfile sends a partial-field update for the doctor's own profile and
// replaces the local copy with the server's answer.
func (s *Store) UpdateProfile(ctx context.Context, fields map[string]any) *api.Doctor {
	s.mu.RLock()
	profile := s.profile
	s.mu.RUnlock()
	if profile == nil {
		s.notifier.Error("No doctor profile loaded")
		return nil
	}

	reqCtx, done := s.requestContext(ctx)
	defer done()

	body := map[string]any{"docId": profile.ID}
	for k, v := range fields {
		body[k] = v
	}

	var payload struct {
		Message string      `json:"message"`
		Doctor  *api.Doctor `json:"doctor"`
	}
	start := time.Now()
	err := s.client.Post(reqCtx, "/api/doctor/update-profile", s.cred(), body, &payload)
	s.observe("update_profile", start, err)
	if err != nil {
		s.logger.Warn("doctor: update profile", "error", err)
		s.notifier.Error(userMessage(err))
		return nil
	}
	if s.closed() {
		return nil
	}

	if payload.Doctor != nil {
		s.mu.Lock()
		s.profile = payload.Doctor
		s.mu.Unlock()
	} else {
		s.FetchProfile(ctx)
	}
	if payload.Message != "" {
		s.notifier.Success(payload.Message)
	} else {
		s.notifier.Success("Profile updated")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil {
		return nil
	}
	updated := *s.profile
	return &updated
}

// SendReminder asks the backend to remind the patient of an appointment. The
// confirmation mentions the patient's next upcoming appointment when there is
// one.
func (s *Store) SendReminder(ctx context.Context, appointmentID string) {
	target, ok := s.appointment(appointmentID)
	if !ok {
		s.notifier.Error("Unknown appointment")
		return
	}

	reqCtx, done := s.requestContext(ctx)
	defer done()

	start := time.Now()
	err := s.client.Post(reqCtx, "/api/doctor/send-reminder", s.cred(), map[string]any{"appointmentId": appointmentID}, nil)
	s.observe("send_reminder", start, err)
	if err != nil {
		s.logger.Warn("doctor: send reminder", "error", err, "appointment_id", appointmentID)
		s.notifier.Error(userMessage(err))
		return
	}

	if next, ok := s.nextAppointmentFor(target.UserID, appointmentID); ok {
		s.notifier.Success("Reminder sent! Next appointment: " + stats.FormatSlotDate(next.SlotDate))
		return
	}
	s.notifier.Success("Reminder sent!")
}

// nextAppointmentFor finds the patient's soonest other upcoming appointment.
func (s *Store) nextAppointmentFor(patientID, excludeID string) (api.Appointment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	candidates := make([]api.Appointment, 0)
	for _, a := range s.appointments {
		if a.UserID == patientID && a.ID != excludeID && a.Status() == api.StatusUpcoming {
			candidates = append(candidates, a)
		}
	}
	soonest := stats.UpcomingSoonest(candidates, 1)
	if len(soonest) == 0 {
		return api.Appointment{}, false
	}
	return soonest[0], true
}

func (s *Store) appointment(appointmentID string) (api.Appointment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.appointments {
		if a.ID == appointmentID {
			return a, true
		}
	}
	return api.Appointment{}, false
}

func (s *Store) patchAppointment(appointmentID string, patch func(*api.Appointment)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.appointments {
		if s.appointments[i].ID == appointmentID {
			patch(&s.appointments[i])
			return
		}
	}
}

// SetAppointments replaces the appointment list directly. Dependent views use
// it to apply edits they already know the server accepted.
func (s *Store) SetAppointments(appts []api.Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appointments = appts
}

// SetProfile replaces the profile directly.
func (s *Store) SetProfile(doc *api.Doctor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = doc
}

// Profile returns the doctor's profile, if one has been fetched.
func (s *Store) Profile() (api.Doctor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil {
		return api.Doctor{}, false
	}
	return *s.profile, true
}

// Appointments returns a copy of the appointment list.
func (s *Store) Appointments() []api.Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]api.Appointment, len(s.appointments))
	copy(out, s.appointments)
	return out
}
