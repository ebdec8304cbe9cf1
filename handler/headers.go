package handler

const (
	allowMethods = "GET, POST, OPTIONS"
	allowHeaders = "Content-Type"
)

func securityHeaders() map[string]string {
	return map[string]string{
		"Content-Security-Policy":   "default-src 'self'; script-src 'self'; style-src 'self'",
		"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
		"X-Frame-Options":           "DENY",
		"X-Content-Type-Options":    "nosniff",
		"Referrer-Policy":           "no-referrer",
	}
}

// applyCORS echoes the origin back only when it is on the allow list. A "*"
// entry allows any origin.
func applyCORS(headers map[string]string, origin string, allowed []string) {
	headers["Access-Control-Allow-Methods"] = allowMethods
	headers["Access-Control-Allow-Headers"] = allowHeaders
	if origin == "" {
		return
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			headers["Access-Control-Allow-Origin"] = origin
			headers["Vary"] = "Origin"
			return
		}
	}
}
