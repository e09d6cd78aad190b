package utils

import (
	"strings"

	ua "github.com/mssola/user_agent"
)

// DeviceInfo describes the client that submitted a scan, as recorded in the audit trail
type DeviceInfo struct {
	DeviceType string `json:"device_type"` // handheld, tablet, kiosk, reader, unknown
	OS         string `json:"os"`
	Browser    string `json:"browser"`
	IsBot      bool   `json:"is_bot"`
}

// Fixed readers post with plain HTTP client agents rather than browsers
var readerAgents = []string{"esp32", "esp8266", "arduino", "python-requests", "curl", "go-http-client", "okhttp"}

// ParseUserAgent classifies the scanning client from its User-Agent header
func ParseUserAgent(userAgent string) DeviceInfo {
	if userAgent == "" || userAgent == "Unknown" {
		return DeviceInfo{DeviceType: "unknown", OS: "Unknown", Browser: "Unknown"}
	}

	lower := strings.ToLower(userAgent)
	for _, agent := range readerAgents {
		if strings.Contains(lower, agent) {
			return DeviceInfo{DeviceType: "reader", OS: "Unknown", Browser: agent}
		}
	}

	parser := ua.New(userAgent)
	info := DeviceInfo{
		IsBot:   parser.Bot(),
		OS:      osName(parser),
		Browser: "Unknown",
	}
	if name, _ := parser.Browser(); name != "" {
		info.Browser = name
	}

	switch {
	case parser.Mobile() && (strings.Contains(lower, "ipad") || strings.Contains(lower, "tablet")):
		info.DeviceType = "tablet"
	case parser.Mobile():
		info.DeviceType = "handheld"
	default:
		info.DeviceType = "kiosk"
	}
	return info
}

func osName(parser *ua.UserAgent) string {
	osInfo := parser.OSInfo()
	if osInfo.Name == "" {
		return "Unknown"
	}
	if osInfo.Version != "" {
		return osInfo.Name + " " + osInfo.Version
	}
	return osInfo.Name
}
