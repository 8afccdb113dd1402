// Package evolution is a Go client and webhook gateway for the Evolution API
// WhatsApp server.
//
// Evolution is a library, not a service. Import it to send messages through
// one or more Evolution API servers and to receive their webhooks.
//
// Key features:
//   - Named connections with a legacy single-server fallback
//   - Per-category fixed-window rate limiting (memory or Redis)
//   - Bounded retries with fixed, linear or exponential backoff
//   - HMAC-SHA256 webhook verification with secret rotation
//   - Sync or queued webhook handlers with at-least-once delivery
//   - Durable task stores (memory, Redis, Postgres)
//
// Quick start:
//
//	c, err := evolution.New(
//	    evolution.WithServer("https://evo.example.com", apiKey),
//	    evolution.WithWebhookSecrets(secret),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	c.HandleFunc([]string{"MESSAGES_UPSERT"}, func(ctx context.Context, evt webhook.Event) error {
//	    log.Println("message on", evt.Instance)
//	    return nil
//	})
//
//	c.SendText(ctx, "", "my-instance", "5511999999999", "hello")
//
//	http.ListenAndServe(":8080", c.Handler())
//
// Task inspection and replay are served by AdminHandler, which belongs on a
// private address:
//
//	go http.ListenAndServe("127.0.0.1:8081", c.AdminHandler())
package evolution
