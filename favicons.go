/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"html"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
)

// A ring of ten plates around a covered centre plate.
const favicon = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 64 64">
<circle cx="32" cy="32" r="30" fill="#f4ead5"/>
<g fill="#c0392b">
<circle cx="32" cy="10" r="5"/><circle cx="45" cy="14" r="5"/><circle cx="53" cy="25" r="5"/>
<circle cx="53" cy="39" r="5"/><circle cx="45" cy="50" r="5"/><circle cx="32" cy="54" r="5"/>
<circle cx="19" cy="50" r="5"/><circle cx="11" cy="39" r="5"/><circle cx="11" cy="25" r="5"/>
<circle cx="19" cy="14" r="5"/>
</g>
<circle cx="32" cy="32" r="10" fill="#2c3e50"/>
</svg>`

func getFavicon(prefix string) string {
	return `<link rel="icon" type="image/svg+xml" href="` + html.EscapeString(prefix) + `/favicon.svg">
	<meta name="theme-color" content="#f4ead5">`
}

func serveFavicon(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		w.Header().Set("Cache-Control", "public, max-age=86400")
		w.Header().Set("Expires", time.Now().Add(24*time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Content-Length", strconv.Itoa(len(favicon)))
		securityHeaders(cfg, w)

		_, err := w.Write([]byte(favicon))
		if err != nil {
			errs <- err

			return
		}
	}
}
