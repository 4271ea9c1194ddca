// Package admin holds the clinic administrator's session state: the admin
// credential and the fetched doctor, appointment, patient, and dashboard
// collections. The store is the single source of truth for that role; every
// view is a projection over its accessors.
package admin

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prescripto/clinic-console/internal/api"
	"github.com/prescripto/clinic-console/internal/notify"
	"github.com/prescripto/clinic-console/internal/observability/metrics"
	"github.com/prescripto/clinic-console/pkg/logging"
)

// CredentialStore persists the session token across restarts.
type CredentialStore interface {
	Save(ctx context.Context, role api.Role, token string) error
	Load(ctx context.Context, role api.Role) (string, error)
	Clear(ctx context.Context, role api.Role) error
}

// Backend is the slice of the API client the admin store uses.
type Backend interface {
	Get(ctx context.Context, path string, cred api.Credential, out any) error
	Post(ctx context.Context, path string, cred api.Credential, body, out any) error
}

// NewDoctor is the add-doctor form payload.
type NewDoctor struct {
	Name           string      `json:"name"`
	Email          string      `json:"email"`
	Password       string      `json:"password"`
	Experience     string      `json:"experience"`
	Fees           float64     `json:"fees"`
	Specialization string      `json:"specialization"`
	Degree         string      `json:"degree"`
	About          string      `json:"about"`
	Address        api.Address `json:"address"`
	Image          string      `json:"image"`
}

// Store is the admin session state store. Mutating operations absorb their
// own failures: state is left untouched and exactly one notification is
// emitted. Collections are replaced wholesale on successful fetches, never
// patched.
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
	doctors      []api.Doctor
	appointments []api.Appointment
	patients     []api.Patient
	dashboard    *api.DashboardSnapshot
}

// NewStore constructs an admin store. creds and m may be nil; a nil notifier
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

// Close tears the store down. In-flight requests are cancelled and late
// responses can no longer mutate state.
func (s *Store) Close() {
	s.close()
}

// requestContext ties a request to both the caller's context and the store
// lifetime, so Close cancels whatever is still in flight.
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

// SetCredential overwrites the in-memory and persisted credential. It does
// not trigger a fetch.
func (s *Store) SetCredential(ctx context.Context, token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	if s.creds == nil {
		return
	}
	if token == "" {
		if err := s.creds.Clear(ctx, api.RoleAdmin); err != nil {
			s.logger.Warn("admin: clear persisted credential", "error", err)
		}
		return
	}
	if err := s.creds.Save(ctx, api.RoleAdmin, token); err != nil {
		s.logger.Warn("admin: persist credential", "error", err)
	}
}

// RestoreCredential loads a previously persisted credential into memory.
func (s *Store) RestoreCredential(ctx context.Context) error {
	if s.creds == nil {
		return nil
	}
	token, err := s.creds.Load(ctx, api.RoleAdmin)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

// Credential returns the current session token. Empty means unauthenticated.
func (s *Store) Credential() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Store) cred() api.Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return api.Credential{Role: api.RoleAdmin, Token: s.token}
}

// userMessage renders an error for the operator: application rejections keep
// the server's message verbatim, transport failures get a generic one.
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
	s.metrics.ObserveRequest(string(api.RoleAdmin), outcome, time.Since(start).Seconds())
	if action != "" {
		s.metrics.ObserveDispatch(action, outcome)
	}
}

// FetchDoctors replaces the doctor roster. On failure the prior roster is
// kept and one notification is emitted.
func (s *Store) FetchDoctors(ctx context.Context) {
	reqCtx, done := s.requestContext(ctx)
	defer done()

	var payload struct {
		Doctors []api.Doctor `json:"doctors"`
	}
	start := time.Now()
	err := s.client.Post(reqCtx, "/api/admin/all-doctors", s.cred(), map[string]any{}, &payload)
	s.observe("", start, err)
	if err != nil {
		s.logger.Warn("admin: fetch doctors", "error", err)
		s.notifier.Error(userMessage(err))
		return
	}
	if s.closed() {
		return
	}

	s.mu.Lock()
	s.doctors = payload.Doctors
	s.mu.Unlock()
	s.logger.Debug("admin: doctors replaced", "count", len(payload.Doctors))
}

// FetchAppointments replaces the appointment collection.
func (s *Store) FetchAppointments(ctx context.Context) {
	reqCtx, done := s.requestContext(ctx)
	defer done()

	var payload struct {
		Appointments []api.Appointment `json:"appointments"`
	}
	start := time.Now()
	err := s.client.Get(reqCtx, "/api/admin/appointments-admin", s.cred(), &payload)
	s.observe("", start, err)
	if err != nil {
		s.logger.Warn("admin: fetch appointments", "error", err)
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

// FetchDashboard replaces the dashboard aggregate wholesale.
func (s *Store) FetchDashboard(ctx context.Context) {
	reqCtx, done := s.requestContext(ctx)
	defer done()

	var payload struct {
		DashData api.DashboardSnapshot `json:"dashData"`
	}
	start := time.Now()
	err := s.client.Get(reqCtx, "/api/admin/dashboard", s.cred(), &payload)
	s.observe("", start, err)
	if err != nil {
		s.logger.Warn("admin: fetch dashboard", "error", err)
		s.notifier.Error(userMessage(err))
		return
	}
	if s.closed() {
		return
	}

	s.mu.Lock()
	s.dashboard = &payload.DashData
	s.mu.Unlock()
}

// FetchPatients replaces the patient collection.
func (s *Store) FetchPatients(ctx context.Context) {
	reqCtx, done := s.requestContext(ctx)
	defer done()

	var payload struct {
		Patients []api.Patient `json:"patients"`
	}
	start := time.Now()
	err := s.client.Post(reqCtx, "/api/admin/all-patients", s.cred(), map[string]any{}, &payload)
	s.observe("", start, err)
	if err != nil {
		s.logger.Warn("admin: fetch patients", "error", err)
		s.notifier.Error(userMessage(err))
		return
	}
	if s.closed() {
		return
	}

	s.mu.Lock()
	s.patients = payload.Patients
	s.mu.Unlock()
}

// ToggleDoctorAvailability flips a doctor's availability, then refetches the
// roster for the authoritative value. No optimistic flip: consistency over
// latency for a field both roles can see.
func (s *Store) ToggleDoctorAvailability(ctx context.Context, docID string) {
	reqCtx, done := s.requestContext(ctx)
	defer done()

	var payload struct {
		Message string `json:"message"`
	}
	start := time.Now()
	err := s.client.Post(reqCtx, "/api/admin/change-availability", s.cred(), map[string]any{"docId": docID}, &payload)
	s.observe("toggle_availability", start, err)
	if err != nil {
		s.logger.Warn("admin: toggle availability", "error", err, "doc_id", docID)
		s.notifier.Error(userMessage(err))
		return
	}
	if s.closed() {
		return
	}

	if payload.Message != "" {
		s.notifier.Success(payload.Message)
	} else {
		s.notifier.Success("Availability updated")
	}
	s.FetchDoctors(ctx)
}

// CancelAppointment cancels an appointment, then refetches the collection.
// Cancelling an already-cancelled appointment is a no-op: no request is sent.
func (s *Store) CancelAppointment(ctx context.Context, appointmentID string) {
	if s.appointmentCancelled(appointmentID) {
		s.logger.Debug("admin: appointment already cancelled", "appointment_id", appointmentID)
		return
	}

	reqCtx, done := s.requestContext(ctx)
	defer done()

	var payload struct {
		Message string `json:"message"`
	}
	start := time.Now()
	err := s.client.Post(reqCtx, "/api/admin/cancelAppointment", s.cred(), map[string]any{"appointmentId": appointmentID}, &payload)
	s.observe("cancel_appointment", start, err)
	if err != nil {
		s.logger.Warn("admin: cancel appointment", "error", err, "appointment_id", appointmentID)
		s.notifier.Error(userMessage(err))
		return
	}
	if s.closed() {
		return
	}

	if payload.Message != "" {
		s.notifier.Success(payload.Message)
	} else {
		s.notifier.Success("Appointment cancelled")
	}
	s.FetchAppointments(ctx)
}

func (s *Store) appointmentCancelled(appointmentID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.appointments {
		if a.ID == appointmentID {
			return a.Cancelled
		}
	}
	return false
}

// UpdateDoctorProfile sends a partial-field update. On success it returns the
// updated record and refreshes the roster; on failure it returns nil and
// leaves state untouched.
func (s *Store) UpdateDoctorProfile(ctx context.Context, docID string, fields map[string]any) *api.Doctor {
	reqCtx, done := s.requestContext(ctx)
	defer done()

	body := map[string]any{"docId": docID}
	for k, v := range fields {
		body[k] = v
	}

	var payload struct {
		Message string      `json:"message"`
		Doctor  *api.Doctor `json:"doctor"`
	}
	start := time.Now()
	err := s.client.Post(reqCtx, "/api/admin/update-doctor-profile", s.cred(), body, &payload)
	s.observe("update_doctor_profile", start, err)
	if err != nil {
		s.logger.Warn("admin: update doctor profile", "error", err, "doc_id", docID)
		s.notifier.Error(userMessage(err))
		return nil
	}
	if s.closed() {
		return nil
	}

	if payload.Message != "" {
		s.notifier.Success(payload.Message)
	} else {
		s.notifier.Success("Doctor profile updated")
	}
	s.FetchDoctors(ctx)
	return payload.Doctor
}

// UpdatePatientProfile mirrors UpdateDoctorProfile for patient records.
func (s *Store) UpdatePatientProfile(ctx context.Context, patientID string, fields map[string]any) *api.Patient {
	reqCtx, done := s.requestContext(ctx)
	defer done()

	body := map[string]any{"patientId": patientID}
	for k, v := range fields {
		body[k] = v
	}

	var payload struct {
		Message string       `json:"message"`
		Patient *api.Patient `json:"patient"`
	}
	start := time.Now()
	err := s.client.Post(reqCtx, "/api/admin/update-patient-profile", s.cred(), body, &payload)
	s.observe("update_patient_profile", start, err)
	if err != nil {
		s.logger.Warn("admin: update patient profile", "error", err, "patient_id", patientID)
		s.notifier.Error(userMessage(err))
		return nil
	}
	if s.closed() {
		return nil
	}

	if payload.Message != "" {
		s.notifier.Success(payload.Message)
	} else {
		s.notifier.Success("Patient profile updated")
	}
	s.FetchPatients(ctx)
	return payload.Patient
}

// PatientAppointments is a read-only query: the result goes straight to the
// caller and is deliberately not cached in the store.
func (s *Store) PatientAppointments(ctx context.Context, patientID string) []api.Appointment {
	reqCtx, done := s.requestContext(ctx)
	defer done()

	var payload struct {
		Appointments []api.Appointment `json:"appointments"`
	}
	start := time.Now()
	err := s.client.Post(reqCtx, "/api/admin/get-patient-appointments", s.cred(), map[string]any{"patientId": patientID}, &payload)
	s.observe("", start, err)
	if err != nil {
		s.logger.Warn("admin: patient appointments", "error", err, "patient_id", patientID)
		s.notifier.Error(userMessage(err))
		return nil
	}
	return payload.Appointments
}

// AddDoctor registers a new doctor. Required fields are validated before any
// request is sent; a validation failure blocks the request entirely.
func (s *Store) AddDoctor(ctx context.Context, doc NewDoctor) bool {
	if msg := validateNewDoctor(doc); msg != "" {
		s.notifier.Error(msg)
		return false
	}

	reqCtx, done := s.requestContext(ctx)
	defer done()

	var payload struct {
		Message string `json:"message"`
	}
	start := time.Now()
	err := s.client.Post(reqCtx, "/api/admin/add-doctor", s.cred(), doc, &payload)
	s.observe("add_doctor", start, err)
	if err != nil {
		s.logger.Warn("admin: add doctor", "error", err)
		s.notifier.Error(userMessage(err))
		return false
	}
	if s.closed() {
		return false
	}

	if payload.Message != "" {
		s.notifier.Success(payload.Message)
	} else {
		s.notifier.Success("Doctor added")
	}
	s.FetchDoctors(ctx)
	return true
}

func validateNewDoctor(doc NewDoctor) string {
	switch {
	case doc.Name == "":
		return "Doctor name is required"
	case doc.Email == "":
		return "Doctor email is required"
	case doc.Password == "":
		return "Doctor password is required"
	case doc.Fees <= 0:
		return "Consultation fees must be positive"
	case doc.Specialization == "":
		return "Specialization is required"
	default:
		return ""
	}
}

// Doctors returns a copy of the current roster.
func (s *Store) Doctors() []api.Doctor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]api.Doctor, len(s.doctors))
	copy(out, s.doctors)
	return out
}

// Appointments returns a copy of the current appointment collection.
func (s *Store) Appointments() []api.Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]api.Appointment, len(s.appointments))
	copy(out, s.appointments)
	return out
}

// Patients returns a copy of the current patient collection.
func (s *Store) Patients() []api.Patient {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]api.Patient, len(s.patients))
	copy(out, s.patients)
	return out
}

// Dashboard returns the latest dashboard snapshot, if one has been fetched.
func (s *Store) Dashboard() (api.DashboardSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dashboard == nil {
		return api.DashboardSnapshot{}, false
	}
	return *s.dashboard, true
}
