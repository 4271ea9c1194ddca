package api

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Money is a backend amount field. The backend is loose about the type: some
// records carry numbers, some numeric strings, some nothing. Anything
// non-numeric decodes to zero rather than failing the whole collection.
type Money float64

func (m *Money) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*m = 0
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			*m = 0
			return nil
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
		if err != nil {
			*m = 0
			return nil
		}
		*m = Money(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		*m = 0
		return nil
	}
	*m = Money(v)
	return nil
}

// Address is a two-line postal address.
type Address struct {
	Line1 string `json:"line1"`
	Line2 string `json:"line2"`
}

// Doctor is the backend's doctor record.
type Doctor struct {
	ID             string  `json:"_id"`
	Name           string  `json:"name"`
	Email          string  `json:"email"`
	Phone          string  `json:"phone"`
	Specialization string  `json:"specialization"`
	Degree         string  `json:"degree"`
	Experience     string  `json:"experience"`
	Fees           Money   `json:"fees"`
	About          string  `json:"about"`
	Address        Address `json:"address"`
	Available      bool    `json:"available"`
	Image          string  `json:"image"`
}

// Patient is the backend's patient record.
type Patient struct {
	ID          string  `json:"_id"`
	Name        string  `json:"name"`
	Email       string  `json:"email"`
	Phone       string  `json:"phone"`
	Gender      string  `json:"gender"`
	DateOfBirth string  `json:"dateOfBirth"`
	Address     Address `json:"address"`
	Image       string  `json:"image"`
}

// Status is the single appointment status derived at the data-model boundary
// from the backend's isCompleted/cancel flag pair.
type Status string

const (
	StatusUpcoming  Status = "upcoming"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Appointment is the backend's appointment record. Patient and doctor are
// denormalized snapshots, not live references.
type Appointment struct {
	ID          string  `json:"_id"`
	UserID      string  `json:"userId"`
	DocID       string  `json:"docId"`
	SlotDate    string  `json:"slotDate"` // day_month_year, e.g. "10_7_2025"
	SlotTime    string  `json:"slotTime"`
	BookedAt    int64   `json:"date"` // unix millis
	Amount      Money   `json:"amount"`
	IsCompleted bool    `json:"isCompleted"`
	Cancelled   bool    `json:"cancel"`
	UserData    Patient `json:"userData"`
	DocData     Doctor  `json:"docData"`
}

// Status collapses the flag pair into one status. Completed wins when both
// flags are set; the backend does not define that combination.
func (a Appointment) Status() Status {
	switch {
	case a.IsCompleted:
		return StatusCompleted
	case a.Cancelled:
		return StatusCancelled
	default:
		return StatusUpcoming
	}
}

// TrendPoint is one month bucket of the dashboard appointment trend.
type TrendPoint struct {
	Name         string `json:"name"`
	Appointments int    `json:"Appointments"`
}

// DistributionSlice is one slice of a dashboard distribution chart.
type DistributionSlice struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// ActivityItem is one entry of the dashboard recent-activity feed.
type ActivityItem struct {
	DoctorName   string `json:"doctorName"`
	DoctorImage  string `json:"doctorImage"`
	PatientName  string `json:"patientName"`
	PatientImage string `json:"patientImage"`
	SlotDate     string `json:"slotDate"`
	SlotTime     string `json:"slotTime"`
	Status       string `json:"status"`
	Amount       Money  `json:"amount"`
}

// DashboardSnapshot is the server-computed aggregate bundle. It is replaced
// wholesale on fetch, never patched.
type DashboardSnapshot struct {
	Doctors           int                 `json:"doctors"`
	Appointments      int                 `json:"appointments"`
	Patients          int                 `json:"patients"`
	AppointmentTrends []TrendPoint        `json:"appointmentTrends"`
	UserDistribution  []DistributionSlice `json:"userDistribution"`
	RecentActivity    []ActivityItem      `json:"recentActivity"`
}

// OrderStatus is a medicine-delivery order's delivery state.
type OrderStatus string

const (
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
)

// Valid reports whether s is one of the delivery states the backend accepts.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderProcessing, OrderShipped, OrderDelivered, OrderCancelled:
		return true
	}
	return false
}

// OrderItem is one purchased line item.
type OrderItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    Money  `json:"price"`
}

// PaymentInfo is the payment metadata attached to an order.
type PaymentInfo struct {
	Method        string `json:"method"`
	Status        string `json:"status"`
	TransactionID string `json:"transactionId"`
}

// ShippingAddress is the delivery destination for an order.
type ShippingAddress struct {
	Name    string `json:"name"`
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Pincode string `json:"pincode"`
	Phone   string `json:"phone"`
}

// Order is a medicine-delivery order.
type Order struct {
	ID              string          `json:"_id"`
	Items           []OrderItem     `json:"items"`
	ShippingAddress ShippingAddress `json:"shippingAddress"`
	Payment         PaymentInfo     `json:"payment"`
	Status          OrderStatus     `json:"status"`
	Total           Money           `json:"total"`
	CreatedAt       string          `json:"createdAt"`
}
