package api

type CreateAccountRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AccountResponse struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Role     string `json:"role"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token    string `json:"token"`
	Role     string `json:"role"`
	Username string `json:"username"`
}

type AvailabilityRequest struct {
	Date string `json:"date"`
}

type AvailabilityResponse struct {
	Caregiver string `json:"caregiver"`
	Date      string `json:"date"`
}

type AddDosesRequest struct {
	Count int `json:"count"`
}

type DosesResponse struct {
	Vaccine string `json:"vaccine"`
	Added   int    `json:"added"`
}

type VaccineResponse struct {
	Name  string `json:"name"`
	Doses int    `json:"doses"`
}

type ScheduleResponse struct {
	Date       string            `json:"date"`
	Caregivers []string          `json:"caregivers"`
	Vaccines   []VaccineResponse `json:"vaccines"`
}

type CreateReservationRequest struct {
	Date    string `json:"date"`
	Vaccine string `json:"vaccine"`
}

type ReservationResponse struct {
	ID        int64  `json:"id"`
	Date      string `json:"date"`
	Caregiver string `json:"caregiver"`
	Vaccine   string `json:"vaccine"`
	Patient   string `json:"patient"`
}

type AppointmentResponse struct {
	ID           int64  `json:"id"`
	Vaccine      string `json:"vaccine"`
	Date         string `json:"date"`
	Counterparty string `json:"counterparty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
