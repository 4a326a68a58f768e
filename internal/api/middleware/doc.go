// Package middleware provides HTTP middleware for the discovery surface.
//
// Middleware stack includes:
//   - CORS: Cross-origin resource sharing for DevTools frontends
//   - RateLimit: Per-IP token bucket rate limiting
//   - Recovery: Panic recovery (via Gin)
//
// CORS Configuration:
//   - AllowOrigins: Permitted origin domains (DevTools frontends send
//     devtools:// and chrome-extension:// origins)
//   - AllowMethods: HTTP methods (the discovery surface is read-only)
//   - MaxAge: Preflight cache duration
//
// Rate Limiting:
//   - Per-IP tracking with opportunistic idle eviction
//   - Token bucket algorithm
//   - Configurable RPS and burst capacity
//
// Example Usage:
//
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
