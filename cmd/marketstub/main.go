package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"msgsync/internal/stubapi"
	"msgsync/pkg/models"
)

// marketstub serves a small in-memory marketplace messaging API for
// local development. Tokens are fixed: "token-alice" and "token-bob".
func main() {
	addr := flag.String("addr", ":8000", "listen address for the stub API")
	seed := flag.Bool("seed", true, "seed a short demo conversation")
	flag.Parse()

	stub := stubapi.New()
	stub.AddUser(stubapi.User{ID: "u-alice", Name: "Alice", Token: "token-alice"})
	stub.AddUser(stubapi.User{ID: "u-bob", Name: "Bob", Token: "token-bob"})

	if *seed {
		now := time.Now().UTC()
		stub.Seed(models.Message{
			SenderID: "u-bob", SenderName: "Bob",
			RecipientID: "u-alice", RecipientName: "Alice",
			Content:   "Is the Golf still available?",
			CreatedAt: models.At(now.Add(-2 * time.Minute)),
			ListingID: "l-golf", ListingTitle: "VW Golf 2015",
		})
		stub.Seed(models.Message{
			SenderID: "u-alice", SenderName: "Alice",
			RecipientID: "u-bob", RecipientName: "Bob",
			Content:   "Yes, want to see it this weekend?",
			CreatedAt: models.At(now.Add(-1 * time.Minute)),
			ListingID: "l-golf", ListingTitle: "VW Golf 2015",
		})
	}

	mux := http.NewServeMux()
	mux.Handle("/api/", http.StripPrefix("/api", stub.Handler()))
	mux.Handle("/", stub.Handler())

	fmt.Printf("marketstub listening on %s\n", *addr)
	if err := http.ListenAndServe(*addr, mux); err != nil {
		log.Fatal(err)
	}
}
