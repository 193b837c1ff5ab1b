// config/security_config.go
package config

type SecurityLevel int

const (
	SecurityPublic  SecurityLevel = iota // No authentication
	SecurityKiosk                        // Kiosk service token required
	SecurityAccess                       // User access token required
)

// EndpointSecurityConfig maps named HTTP routes to their required security level
var EndpointSecurityConfig = map[string]SecurityLevel{
	"health": SecurityPublic,

	// Hardware callbacks carry a kiosk service token, not a user token
	"kiosk.events": SecurityKiosk,

	"rentals.start":  SecurityAccess,
	"rentals.active": SecurityAccess,
	"rentals.list":   SecurityAccess,
	"rentals.get":    SecurityAccess,
	"rentals.extend": SecurityAccess,
	"rentals.cancel": SecurityAccess,
	"rentals.return": SecurityAccess,

	"notifications.list": SecurityAccess,
	"notifications.read": SecurityAccess,
}

// GetSecurityLevel returns the security level for a given route name
func GetSecurityLevel(route string) SecurityLevel {
	if level, exists := EndpointSecurityConfig[route]; exists {
		return level
	}
	// Default to highest security for unknown endpoints
	return SecurityAccess
}
