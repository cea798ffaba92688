package hydrawise

// Wire shapes of the v1 REST API. Only fields the monitor reads are mapped.

type customerDetails struct {
	ControllerID      int64        `json:"controller_id"`
	CustomerID        int64        `json:"customer_id"`
	CurrentController string       `json:"current_controller"`
	Controllers       []controller `json:"controllers"`
	NextPoll          int          `json:"nextpoll"`
}

type controller struct {
	Name         string `json:"name"`
	ControllerID int64  `json:"controller_id"`
	SerialNumber string `json:"serial_number"`
	LastContact  int64  `json:"last_contact"` // unix seconds
	Status       string `json:"status"`
}

type statusSchedule struct {
	Time     int64   `json:"time"` // controller clock, unix seconds
	NextPoll int     `json:"nextpoll"`
	Message  string  `json:"message"`
	Relays   []relay `json:"relays"`
}

type relay struct {
	RelayID int64  `json:"relay_id"`
	Relay   int    `json:"relay"` // physical zone number
	Name    string `json:"name"`
	// Time is the number of seconds until the next run. 1 means the zone is
	// running now; a large value (> 1 year) means no run is scheduled.
	Time    int64  `json:"time"`
	TimeStr string `json:"timestr"`
	Run     int64  `json:"run"` // seconds; for a running zone, seconds remaining
	Type    int    `json:"type"`
	// SuspendedUntil is unix seconds, zero when not suspended.
	SuspendedUntil int64 `json:"suspended"`
}

type setZoneResponse struct {
	Message     string `json:"message"`
	MessageType string `json:"message_type"`
	NextPoll    int    `json:"nextpoll"`
}
