package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"coin-rewards-ledger/middleware"
	"coin-rewards-ledger/store"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

const streamKeepAlive = 15 * time.Second

// streamable admin collections
var streamCollections = map[string]bool{
	"users":            true,
	"withdrawRequests": true,
	"depositRequests":  true,
	"videoPromotions":  true,
}

// SetupStreamRoutes registers the live views. The user stream authenticates
// with query params, the admin streams go through the gateway headers.
func SetupStreamRoutes(app *fiber.App, svc *Services, auth middleware.TokenValidator, adminUIDs []string) {
	log := svc.Log.WithField("component", "stream")

	app.Get("/stream/account", middleware.StreamAuthMiddleware(auth, svc.Log), func(c *fiber.Ctx) error {
		uid := middleware.Identity(c).UID
		path, err := store.Join("users", uid)
		if err != nil {
			return respondError(c, log, err)
		}
		return streamSnapshots(c, log.WithField("uid", uid), "account", func(ctx context.Context, fn func(store.Snapshot)) func() {
			return store.WatchDocument(ctx, svc.Store, path, fn)
		})
	})

	app.Get("/stream/admin/:collection",
		middleware.UserContextMiddleware(svc.Log),
		middleware.RequireAdmin(adminUIDs, svc.Log),
		func(c *fiber.Ctx) error {
			collection := c.Params("collection")
			if !streamCollections[collection] {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown collection"})
			}
			return streamSnapshots(c, log.WithField("collection", collection), collection, func(ctx context.Context, fn func(store.Snapshot)) func() {
				return store.WatchCollection(ctx, svc.Store, collection, fn)
			})
		})
}

// streamSnapshots writes every snapshot as an SSE event until the client goes away.
func streamSnapshots(c *fiber.Ctx, log *logrus.Entry, event string, subscribe func(context.Context, func(store.Snapshot)) func()) error {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	serverDone := c.Context().Done()

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// keeps only the newest snapshot when the client reads slowly
		latest := make(chan store.Snapshot, 1)
		stop := subscribe(ctx, func(snap store.Snapshot) {
			select {
			case <-latest:
			default:
			}
			latest <- snap
		})
		defer stop()

		ticker := time.NewTicker(streamKeepAlive)
		defer ticker.Stop()

		w.WriteString(":\n\n")
		if err := w.Flush(); err != nil {
			return
		}

		for {
			select {
			case snap := <-latest:
				payload, err := json.Marshal(snap)
				if err != nil {
					log.WithError(err).Error("encode snapshot")
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
				if err := w.Flush(); err != nil {
					// client disconnected
					return
				}
			case <-ticker.C:
				w.WriteString(":\n\n")
				if err := w.Flush(); err != nil {
					return
				}
			case <-serverDone:
				return
			}
		}
	})

	return nil
}
