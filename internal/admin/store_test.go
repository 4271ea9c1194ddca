package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prescripto/clinic-console/internal/api"
	"github.com/prescripto/clinic-console/internal/credential"
	"github.com/prescripto/clinic-console/internal/notify"
)

// fakeBackend is an in-memory clinic backend speaking the envelope protocol.
type fakeBackend struct {
	mu           sync.Mutex
	doctors      []api.Doctor
	appointments []api.Appointment
	patients     []api.Patient
	rejectWith   string // when set, every request answers success:false
	calls        map[string]int
	server       *httptest.Server
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	f := &fakeBackend{calls: map[string]int{}}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeBackend) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[r.URL.Path]++

	if f.rejectWith != "" {
		json.NewEncoder(w).Encode(map[string]any{"success": false, "message": f.rejectWith})
		return
	}

	resp := map[string]any{"success": true}
	switch r.URL.Path {
	case "/api/admin/all-doctors":
		resp["doctors"] = f.doctors
	case "/api/admin/appointments-admin":
		resp["appointments"] = f.appointments
	case "/api/admin/all-patients":
		resp["patients"] = f.patients
	case "/api/admin/dashboard":
		resp["dashData"] = api.DashboardSnapshot{
			Doctors:      len(f.doctors),
			Appointments: len(f.appointments),
			Patients:     len(f.patients),
		}
	case "/api/admin/change-availability":
		var body struct {
			DocID string `json:"docId"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		for i := range f.doctors {
			if f.doctors[i].ID == body.DocID {
				f.doctors[i].Available = !f.doctors[i].Available
			}
		}
		resp["message"] = "Availability changed"
	case "/api/admin/cancelAppointment":
		var body struct {
			AppointmentID string `json:"appointmentId"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		for i := range f.appointments {
			if f.appointments[i].ID == body.AppointmentID {
				f.appointments[i].Cancelled = true
			}
		}
		resp["message"] = "Appointment cancelled"
	case "/api/admin/update-doctor-profile":
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		docID, _ := body["docId"].(string)
		for i := range f.doctors {
			if f.doctors[i].ID == docID {
				if name, ok := body["name"].(string); ok {
					f.doctors[i].Name = name
				}
				resp["doctor"] = f.doctors[i]
			}
		}
		resp["message"] = "Doctor profile updated"
	case "/api/admin/update-patient-profile":
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		patientID, _ := body["patientId"].(string)
		for i := range f.patients {
			if f.patients[i].ID == patientID {
				if name, ok := body["name"].(string); ok {
					f.patients[i].Name = name
				}
				resp["patient"] = f.patients[i]
			}
		}
		resp["message"] = "Patient profile updated"
	case "/api/admin/get-patient-appointments":
		var body struct {
			PatientID string `json:"patientId"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		matched := []api.Appointment{}
		for _, a := range f.appointments {
			if a.UserID == body.PatientID {
				matched = append(matched, a)
			}
		}
		resp["appointments"] = matched
	case "/api/admin/add-doctor":
		var doc api.Doctor
		json.NewDecoder(r.Body).Decode(&doc)
		doc.ID = "new"
		f.doctors = append(f.doctors, doc)
		resp["message"] = "Doctor added"
	default:
		json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "not found"})
		return
	}
	json.NewEncoder(w).Encode(resp)
}

func (f *fakeBackend) callCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func newTestStore(t *testing.T, f *fakeBackend) (*Store, *notify.Recorder) {
	t.Helper()
	rec := notify.NewRecorder(0)
	client := api.NewClient(f.server.URL)
	store := NewStore(client, nil, rec, nil, nil)
	t.Cleanup(store.Close)
	store.SetCredential(context.Background(), "admin-token")
	return store, rec
}

func TestFetchDoctorsReplacesWholesale(t *testing.T) {
	f := newFakeBackend(t)
	f.doctors = []api.Doctor{{ID: "d1", Name: "Dr. Rao"}, {ID: "d2", Name: "Dr. Hart"}}
	store, rec := newTestStore(t, f)

	store.FetchDoctors(context.Background())

	require.Len(t, store.Doctors(), 2)
	assert.Empty(t, rec.Notifications())

	f.mu.Lock()
	f.doctors = f.doctors[:1]
	f.mu.Unlock()
	store.FetchDoctors(context.Background())
	assert.Len(t, store.Doctors(), 1, "collection replaced, not merged")
}

func TestFetchFailureKeepsPriorStateAndNotifiesOnce(t *testing.T) {
	f := newFakeBackend(t)
	f.doctors = []api.Doctor{{ID: "d1", Name: "Dr. Rao"}}
	store, rec := newTestStore(t, f)
	store.FetchDoctors(context.Background())
	require.Len(t, store.Doctors(), 1)

	f.mu.Lock()
	f.rejectWith = "unauthorized"
	f.mu.Unlock()

	store.FetchDoctors(context.Background())

	assert.Len(t, store.Doctors(), 1, "prior collection untouched")
	notes := rec.Notifications()
	require.Len(t, notes, 1, "exactly one notification")
	assert.Equal(t, notify.LevelError, notes[0].Level)
	assert.Contains(t, notes[0].Message, "unauthorized")
}

func TestTransportFailureUsesGenericMessage(t *testing.T) {
	f := newFakeBackend(t)
	store, rec := newTestStore(t, f)
	f.server.Close()

	store.FetchAppointments(context.Background())

	notes := rec.Notifications()
	require.Len(t, notes, 1)
	assert.NotContains(t, notes[0].Message, "connection refused",
		"transport detail stays out of the user message")
}

func TestToggleAvailabilityTwiceRestoresRoster(t *testing.T) {
	f := newFakeBackend(t)
	f.doctors = []api.Doctor{{ID: "d1", Name: "Dr. Rao", Available: true}}
	store, _ := newTestStore(t, f)
	store.FetchDoctors(context.Background())

	store.ToggleDoctorAvailability(context.Background(), "d1")
	require.False(t, store.Doctors()[0].Available)

	store.ToggleDoctorAvailability(context.Background(), "d1")
	assert.True(t, store.Doctors()[0].Available, "two toggles restore the original value")

	// Each toggle refetched the roster for the authoritative value.
	assert.Equal(t, 3, f.callCount("/api/admin/all-doctors"))
}

func TestCancelAppointmentRefetches(t *testing.T) {
	f := newFakeBackend(t)
	f.appointments = []api.Appointment{{ID: "a1"}}
	store, rec := newTestStore(t, f)
	store.FetchAppointments(context.Background())

	store.CancelAppointment(context.Background(), "a1")

	require.Len(t, store.Appointments(), 1)
	assert.True(t, store.Appointments()[0].Cancelled)
	notes := rec.Notifications()
	require.NotEmpty(t, notes)
	assert.Equal(t, notify.LevelSuccess, notes[0].Level)
}

func TestCancelAlreadyCancelledIsNoOp(t *testing.T) {
	f := newFakeBackend(t)
	f.appointments = []api.Appointment{{ID: "a1", Cancelled: true}}
	store, rec := newTestStore(t, f)
	store.FetchAppointments(context.Background())

	before := f.callCount("/api/admin/cancelAppointment")
	store.CancelAppointment(context.Background(), "a1")

	assert.Equal(t, before, f.callCount("/api/admin/cancelAppointment"), "no request issued")
	assert.Empty(t, rec.Notifications())
}

func TestUpdateDoctorProfile(t *testing.T) {
	f := newFakeBackend(t)
	f.doctors = []api.Doctor{{ID: "d1", Name: "Dr. Rao"}}
	store, _ := newTestStore(t, f)
	store.FetchDoctors(context.Background())

	updated := store.UpdateDoctorProfile(context.Background(), "d1", map[string]any{"name": "Dr. Rao Jr."})
	require.NotNil(t, updated)
	assert.Equal(t, "Dr. Rao Jr.", updated.Name)
	assert.Equal(t, "Dr. Rao Jr.", store.Doctors()[0].Name, "roster refreshed")
}

func TestUpdateDoctorProfileFailureReturnsNil(t *testing.T) {
	f := newFakeBackend(t)
	f.doctors = []api.Doctor{{ID: "d1", Name: "Dr. Rao"}}
	store, rec := newTestStore(t, f)
	store.FetchDoctors(context.Background())

	f.mu.Lock()
	f.rejectWith = "profile locked"
	f.mu.Unlock()

	updated := store.UpdateDoctorProfile(context.Background(), "d1", map[string]any{"name": "X"})
	assert.Nil(t, updated)
	assert.Equal(t, "Dr. Rao", store.Doctors()[0].Name, "state untouched")
	require.Len(t, rec.Notifications(), 1)
	assert.Contains(t, rec.Notifications()[0].Message, "profile locked")
}

func TestPatientAppointmentsDoesNotMutateState(t *testing.T) {
	f := newFakeBackend(t)
	f.appointments = []api.Appointment{
		{ID: "a1", UserID: "p1"},
		{ID: "a2", UserID: "p2"},
	}
	store, _ := newTestStore(t, f)

	got := store.PatientAppointments(context.Background(), "p1")
	require.Len(t, got, 1)
	assert.Equal(t, "a1", got[0].ID)
	assert.Empty(t, store.Appointments(), "shared state not written")
}

func TestAddDoctorValidationBlocksRequest(t *testing.T) {
	f := newFakeBackend(t)
	store, rec := newTestStore(t, f)

	ok := store.AddDoctor(context.Background(), NewDoctor{Name: "Dr. Incomplete"})
	assert.False(t, ok)
	assert.Equal(t, 0, f.callCount("/api/admin/add-doctor"), "request blocked")
	require.Len(t, rec.Notifications(), 1)
	assert.Equal(t, notify.LevelError, rec.Notifications()[0].Level)
}

func TestAddDoctorSuccess(t *testing.T) {
	f := newFakeBackend(t)
	store, _ := newTestStore(t, f)

	ok := store.AddDoctor(context.Background(), NewDoctor{
		Name:           "Dr. New",
		Email:          "new@clinic.example",
		Password:       "secret",
		Fees:           350,
		Specialization: "Dermatology",
	})
	require.True(t, ok)
	require.Len(t, store.Doctors(), 1)
	assert.Equal(t, "Dr. New", store.Doctors()[0].Name)
}

func TestClosedStoreDropsLateResponse(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"doctors": []api.Doctor{{ID: "late"}},
		})
	}))
	defer server.Close()
	defer close(release)

	rec := notify.NewRecorder(0)
	store := NewStore(api.NewClient(server.URL), nil, rec, nil, nil)
	store.SetCredential(context.Background(), "tok")

	done := make(chan struct{})
	go func() {
		store.FetchDoctors(context.Background())
		close(done)
	}()

	<-started
	store.Close()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("fetch did not return after store close")
	}
	assert.Empty(t, store.Doctors(), "late response must not mutate a closed store")
}

func TestSetCredentialPersists(t *testing.T) {
	mr := miniredis.RunT(t)
	creds := credential.NewStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	f := newFakeBackend(t)
	store := NewStore(api.NewClient(f.server.URL), creds, notify.NewRecorder(0), nil, nil)
	t.Cleanup(store.Close)

	ctx := context.Background()
	store.SetCredential(ctx, "persist-me")

	restored := NewStore(api.NewClient(f.server.URL), creds, notify.NewRecorder(0), nil, nil)
	t.Cleanup(restored.Close)
	require.NoError(t, restored.RestoreCredential(ctx))
	assert.Equal(t, "persist-me", restored.Credential())

	// Clearing the credential logs the admin out durably.
	store.SetCredential(ctx, "")
	require.NoError(t, restored.RestoreCredential(ctx))
	assert.Empty(t, restored.Credential())
}

func TestUserMessage(t *testing.T) {
	rejection := &api.APIError{Message: "slot taken"}
	assert.Equal(t, "slot taken", userMessage(rejection))
	assert.True(t, strings.Contains(userMessage(assert.AnError), "backend"))
}
