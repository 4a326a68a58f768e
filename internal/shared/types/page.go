package types

// PageID identifies one logical UI page exposed to the remote debugger.
// It is opaque to the bridge, unique per page, and stable for the page's
// lifetime. The same value keys the session registry and terminates the
// WebSocket path (/ws/<PageID>).
type PageID string

// RequestID correlates one outbound request with its eventual response.
// IDs are allocated per session, strictly increasing from 1, and never
// reused within a session's lifetime.
type RequestID int64

// Page is the metadata the host supplies when registering a page. It is
// what the discovery endpoints advertise to DevTools clients.
type Page struct {
	ID    PageID `json:"id"`
	Title string `json:"title"`
	// URL identifies the page content in the host's own scheme.
	// Defaults to "page://<id>" when the host leaves it empty.
	URL string `json:"url,omitempty"`
}

// EffectiveURL returns the advertised URL, falling back to the
// page:// scheme when the host did not provide one.
func (p Page) EffectiveURL() string {
	if p.URL != "" {
		return p.URL
	}
	return "page://" + string(p.ID)
}
