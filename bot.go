/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/url"
	"strings"

	"github.com/Seednode/platematch/match"
	"github.com/Seednode/platematch/peer"
	"github.com/Seednode/platematch/rooms"
	"github.com/skip2/go-qrcode"
)

// terminalQR draws content as a QR code using half-block characters, two
// module rows per line.
func terminalQR(content string) (string, error) {
	q, err := qrcode.New(content, qrcode.Low)
	if err != nil {
		return "", err
	}

	bitmap := q.Bitmap()

	var b strings.Builder
	for y := 0; y < len(bitmap); y += 2 {
		for x := range bitmap[y] {
			top := bitmap[y][x]
			bottom := y+1 < len(bitmap) && bitmap[y+1][x]

			switch {
			case top && bottom:
				b.WriteRune('█')
			case top:
				b.WriteRune('▀')
			case bottom:
				b.WriteRune('▄')
			default:
				b.WriteRune(' ')
			}
		}
		b.WriteByte('\n')
	}

	return b.String(), nil
}

func runBot(ctx context.Context, cfg *Config, out io.Writer) error {
	bot := cfg.bot
	client := peer.NewClient(bot.server)

	var (
		seat match.Seat
		err  error
	)

	code := bot.code
	roomID := ""

	if code == "" {
		plates := bot.plates
		created, err := client.Create(ctx, &plates)
		if err != nil {
			return fmt.Errorf("create room: %w", err)
		}
		code, roomID = created.Code, created.ID

		u, err := url.Parse(client.Base)
		if err != nil {
			return err
		}
		link := inviteURL(u.Scheme, u.Host, strings.TrimSuffix(u.Path, "/"), code)

		fmt.Fprintf(out, "Opened room %s (%d plates)\nInvite: %s\n", code, created.PlateCount, link)

		if qr, err := terminalQR(link); err == nil {
			fmt.Fprint(out, qr)
		}
	}

	var room rooms.Room
	if roomID != "" {
		seat, room, err = client.Join(ctx, roomID, bot.name)
	} else {
		seat, room, err = client.JoinByCode(ctx, code, bot.name)
	}
	if err != nil {
		return fmt.Errorf("join room %s: %w", code, err)
	}

	logf(cfg, "GAMES: Seated as %d in room %s (%d plates, seat %d first)", seat, room.ID, room.PlateCount, room.FirstSeat)

	wsURL, err := client.WebsocketURL()
	if err != nil {
		return err
	}

	seed := bot.seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	p := peer.New(peer.Config{
		URL:      wsURL,
		RoomID:   room.ID,
		Seat:     seat,
		Name:     bot.name,
		Host:     bot.start && seat == match.Seat0,
		Think:    bot.think,
		Strategy: peer.NewMemory(bot.recall, seed),
		Rand:     rand.New(rand.NewPCG(seed, seed+1)),
		Logf:     logger(cfg, "GAMES"),
	})

	fmt.Fprintf(out, "Playing as seat %d in room %s, waiting for an opponent\n", seat, code)

	outcome, err := p.Run(ctx)
	switch {
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(out, "Left the room")

		return nil
	case err != nil:
		return err
	}

	switch {
	case outcome.Won(seat):
		fmt.Fprintf(out, "Won by %s\n", outcome.Reason)
	case outcome.Over:
		fmt.Fprintf(out, "Lost by %s\n", outcome.Reason)
	case outcome.PeerLeft:
		fmt.Fprintln(out, "Opponent left the room")
	default:
		fmt.Fprintln(out, "Room closed")
	}

	return nil
}
