package clanalytics

import "strings"

const (
	DeviceDesktop = "Desktop"
	DeviceMobile  = "Mobile"
	DeviceTablet  = "Tablet"
	DeviceBot     = "Bot"
)

var botMarkers = []string{"bot", "crawler", "spider", "slurp", "curl/", "wget/", "python-requests", "headless"}

// DeviceType déduit une classe d'appareil grossière du User-Agent
func DeviceType(userAgent string) string {
	ua := strings.ToLower(userAgent)
	if ua == "" {
		return DeviceDesktop
	}

	for _, marker := range botMarkers {
		if strings.Contains(ua, marker) {
			return DeviceBot
		}
	}

	switch {
	case strings.Contains(ua, "ipad"),
		strings.Contains(ua, "tablet"),
		strings.Contains(ua, "android") && !strings.Contains(ua, "mobile"):
		return DeviceTablet
	case strings.Contains(ua, "mobi"),
		strings.Contains(ua, "iphone"),
		strings.Contains(ua, "ipod"),
		strings.Contains(ua, "windows phone"):
		return DeviceMobile
	}
	return DeviceDesktop
}
