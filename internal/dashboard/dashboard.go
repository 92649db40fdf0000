// Package dashboard serves the embedded single-page status dashboard.
package dashboard

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed assets
var assets embed.FS

// Handler serves index.html at / and the other assets (style.css, app.js)
// at their paths. The page reads /api/status, follows /api/ws and posts new
// targets to /api/targets.
func Handler() http.Handler {
	sub, err := fs.Sub(assets, "assets")
	if err != nil {
		panic(err)
	}
	return http.FileServer(http.FS(sub))
}
