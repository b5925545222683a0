// Package useragent provides the external user-agent that shows the
// provider's authorization page to the user.
//
// Browser opens the page in the system browser and receives the redirect
// on a loopback callback server:
//
//	ua, err := useragent.NewBrowser("http://127.0.0.1:8765/callback")
//	ctrl, err := flow.New(cfg, flow.WithUserAgent(ua))
//
// Redirect URLs on other hosts cannot be received locally; the redirected
// URL is handed to the current attempt with Browser.Navigate instead.
package useragent
