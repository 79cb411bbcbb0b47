package model

// ConnectionStatus represents the lifecycle state of an external connection.
type ConnectionStatus string

const (
	// ConnectionStatusPending is the initial state while the authorization
	// handshake is in flight. A connection never re-enters this state.
	ConnectionStatusPending ConnectionStatus = "pending"
	// ConnectionStatusConnected means the handshake and connectivity test
	// succeeded and a valid credential reference exists.
	ConnectionStatusConnected ConnectionStatus = "connected"
	// ConnectionStatusError means the last sync or token refresh failed.
	ConnectionStatusError ConnectionStatus = "error"
	// ConnectionStatusDisconnected means the user explicitly revoked the
	// connection. Terminal.
	ConnectionStatusDisconnected ConnectionStatus = "disconnected"
)

// ConnectionCategory classifies the kind of external data source.
type ConnectionCategory string

const (
	CategoryFinancial ConnectionCategory = "financial"
	CategoryCalendar  ConnectionCategory = "calendar"
	CategoryHealth    ConnectionCategory = "health"
	CategorySocial    ConnectionCategory = "social"
	CategoryManual    ConnectionCategory = "manual"
)

// SecretKind identifies the shape of a stored credential payload.
type SecretKind string

const (
	SecretKindOAuth       SecretKind = "oauth"
	SecretKindAPIKey      SecretKind = "api_key"
	SecretKindBasicAuth   SecretKind = "basic_auth"
	SecretKindCertificate SecretKind = "certificate"
)

// Cadence is the sync frequency class for a connection.
type Cadence string

const (
	CadenceRealtime Cadence = "realtime"
	CadenceHourly   Cadence = "hourly"
	CadenceDaily    Cadence = "daily"
	CadenceWeekly   Cadence = "weekly"
	CadenceManual   Cadence = "manual"
)

// ValidCadence reports whether c is one of the known cadence classes.
func ValidCadence(c Cadence) bool {
	switch c {
	case CadenceRealtime, CadenceHourly, CadenceDaily, CadenceWeekly, CadenceManual:
		return true
	}
	return false
}

// ValidSecretKind reports whether k is one of the known credential kinds.
func ValidSecretKind(k SecretKind) bool {
	switch k {
	case SecretKindOAuth, SecretKindAPIKey, SecretKindBasicAuth, SecretKindCertificate:
		return true
	}
	return false
}
