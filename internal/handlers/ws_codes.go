package handlers

// Custom WebSocket close codes used by the match handler.
const (
	BadSubprotocolError   = 3000 // Client connected with an unsupported subprotocol.
	InvalidAuthTokenError = 3001 // Auth token was invalid and no guest could be created.
)
