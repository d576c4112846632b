package mongo

const (
	SlotsCollection              = "Slots"
	AppointmentsCollection       = "Appointments"
	ReservationLocksCollection   = "Reservation_locks"
	PractitionerGuardsCollection = "Practitioner_guards"
)

// DuplicateKeyCode is the server error code for unique index violations.
const DuplicateKeyCode = 11000
