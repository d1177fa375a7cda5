/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Seednode/platematch/rooms"
	"github.com/julienschmidt/httprouter"
)

// serveHomePage lists the rooms still waiting for a second player.
func serveHomePage(cfg *Config, store *rooms.Store, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		open := store.Joinable()

		var b strings.Builder
		b.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
		b.WriteString(getFavicon(cfg.prefix))
		b.WriteString(fmt.Sprintf("<title>platematch v%s</title></head><body>", releaseVersion))
		b.WriteString("<h1>platematch</h1>")
		b.WriteString(fmt.Sprintf("<p>%d open room(s). Create one with <code>POST %s/api/rooms</code> or join with <code>platematch bot --code CODE</code>.</p>",
			len(open), html.EscapeString(cfg.prefix)))

		if len(open) > 0 {
			b.WriteString("<ul>")
			for _, room := range open {
				host := "nobody"
				if room.Player1 != nil {
					host = room.Player1.Name
				}
				b.WriteString(fmt.Sprintf(`<li><code>%s</code> hosted by %s, %d plates, <a href="%s/api/rooms/%s/qr">invite</a></li>`,
					room.Code,
					html.EscapeString(host),
					room.PlateCount,
					html.EscapeString(cfg.prefix),
					room.ID,
				))
			}
			b.WriteString("</ul>")
		}
		b.WriteString("</body></html>")

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		written, err := w.Write([]byte(b.String()))
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: Home page (%s) to %s in %s",
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func serveHealthCheck(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)

		_, err := w.Write([]byte("Ok\n"))
		if err != nil {
			errs <- err

			return
		}
	}
}

func serveRobots(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		data := `User-agent: *
Disallow: /api/
Disallow: /ws

User-agent: GPTBot
Disallow: /

User-agent: CCBot
Disallow: /`

		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		_, err := w.Write([]byte(data))
		if err != nil {
			errs <- err

			return
		}
	}
}
