package domain

// Info is the device snapshot attached to sessions and security events.
type Info struct {
	Platform   string `json:"platform"`
	AppVersion string `json:"appVersion"`
	DeviceID   string `json:"deviceId"`
}
