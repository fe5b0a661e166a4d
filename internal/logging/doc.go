// Package logging provides a slog handler that keeps credentials out of
// crawl logs.
//
// The download path logs URLs, proxy endpoints, and request headers, any
// of which can carry secrets: proxy userinfo, Authorization and Cookie
// headers, API keys. The redacting handler masks those attribute values
// before they reach the underlying handler, so every log line emitted by
// the engine is safe to ship to aggregation as-is.
package logging
