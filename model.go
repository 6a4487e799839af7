package telesync

import "time"

// User is the authenticated account profile returned by the remote API.
type User struct {
	ID                 int64      `json:"id"`
	Email              string     `json:"email"`
	Role               string     `json:"role"` // super_admin, service_admin, technician, guest
	FirstName          string     `json:"first_name"`
	LastName           string     `json:"last_name"`
	IsActive           bool       `json:"is_active"`
	AllowedLocationIDs []int64    `json:"allowed_location_ids"`
	CreatedAt          time.Time  `json:"created_at"`
	LastLoginAt        *time.Time `json:"last_login_at"`
}

// Device is an IoT device as reported by the remote API.
type Device struct {
	ID              int64          `json:"id"`
	AssetID         *int64         `json:"asset_id"`
	DeviceEUI       string         `json:"device_eui"`
	Name            string         `json:"name"`
	Status          string         `json:"status"` // active, inactive, maintenance, error
	FirmwareVersion string         `json:"firmware_version"`
	LastSeenAt      *time.Time     `json:"last_seen_at"`
	Config          map[string]any `json:"config"`
	ExtraData       map[string]any `json:"extra_data"`
	CreatedAt       time.Time      `json:"created_at"`
}

// SensorReading is a single telemetry measurement from a device.
type SensorReading struct {
	ID           int64              `json:"id"`
	DeviceID     int64              `json:"device_id"`
	DataPayload  map[string]float64 `json:"data_payload"`
	QualityScore *float64           `json:"quality_score"`
	Processed    bool               `json:"processed"`
	Timestamp    time.Time          `json:"timestamp"`
}

// DeviceVariable describes one plottable variable in a device's payload.
type DeviceVariable struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Unit  string `json:"unit"`
	Type  string `json:"type"`
	Color string `json:"color,omitempty"`
}

// DeviceSchema lists the variables a device reports, used to drive charts.
type DeviceSchema struct {
	DeviceID  int64            `json:"device_id"`
	Variables []DeviceVariable `json:"variables"`
}

// TimeWindow is an absolute [From, To] range. From never exceeds To.
type TimeWindow struct {
	From time.Time
	To   time.Time
}

// TokenResponse is the payload of a successful login.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// NewDevice carries the fields needed to register a device.
type NewDevice struct {
	DeviceEUI string         `json:"device_eui"`
	Name      string         `json:"name"`
	AssetID   *int64         `json:"asset_id,omitempty"`
	Status    string         `json:"status,omitempty"`
	Config    map[string]any `json:"config,omitempty"`
}

// DevicePatch carries a partial device update. Nil fields are left
// unchanged by the remote API.
type DevicePatch struct {
	Name            *string        `json:"name,omitempty"`
	Status          *string        `json:"status,omitempty"`
	AssetID         *int64         `json:"asset_id,omitempty"`
	FirmwareVersion *string        `json:"firmware_version,omitempty"`
	Config          map[string]any `json:"config,omitempty"`
}
