package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/mahaj/duochat/pkg/chatclient"
	"github.com/mahaj/duochat/pkg/model"
	"github.com/spf13/cobra"
)

func main() {
	var apiAddr, gateway string
	cmd := &cobra.Command{
		Use:          "verify_api",
		Short:        "Smoke test a running api and gateway",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			return verify(ctx, apiAddr, gateway)
		},
	}
	cmd.Flags().StringVar(&apiAddr, "api", "http://localhost:8081", "api service address")
	cmd.Flags().StringVar(&gateway, "addr", "ws://localhost:8080/ws", "gateway websocket url")
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// verify registers two fresh users, exchanges one message between them and
// checks that it is delivered live and returned by a fetch.
func verify(ctx context.Context, apiAddr, gateway string) error {
	api := chatclient.NewAPI(apiAddr)
	suffix := uuid.NewString()[:8]

	a, err := api.Register(ctx, "a"+suffix, "verify-password")
	if err != nil {
		return err
	}
	b, err := api.Register(ctx, "b"+suffix, "verify-password")
	if err != nil {
		return err
	}
	fmt.Printf("Registered %s (%d) and %s (%d)\n", a.User.Username, a.User.ID, b.User.Username, b.User.ID)

	users, err := api.Users(ctx, a.Token)
	if err != nil {
		return err
	}
	fmt.Printf("Directory lists %d other users\n", len(users))

	connA, err := joined(ctx, gateway, a.Token, &b.User.ID)
	if err != nil {
		return err
	}
	defer connA.Close()
	connB, err := joined(ctx, gateway, b.Token, &a.User.ID)
	if err != nil {
		return err
	}
	defer connB.Close()

	if err := connA.Send("hello from verify_api", &b.User.ID); err != nil {
		return err
	}
	got, err := expect(connB, model.EventReceiveMessage)
	if err != nil {
		return err
	}
	fmt.Printf("Delivered message #%d: %q\n", got.Message.ID, got.Message.Content)

	if err := connB.Fetch(&a.User.ID); err != nil {
		return err
	}
	hist, err := expect(connB, model.EventAllMessages)
	if err != nil {
		return err
	}
	if len(hist.History) != 1 || hist.History[0].ID != got.Message.ID {
		return fmt.Errorf("history has %d messages, want the delivered one", len(hist.History))
	}
	fmt.Println("History replay OK")
	return nil
}

// joined dials the gateway and waits until the join has been applied.
func joined(ctx context.Context, gateway, token string, other *int64) (*chatclient.Conn, error) {
	conn, err := chatclient.Dial(ctx, gateway, token)
	if err != nil {
		return nil, err
	}
	if err := conn.Join(other); err != nil {
		return nil, err
	}
	if err := conn.Fetch(other); err != nil {
		return nil, err
	}
	if _, err := expect(conn, model.EventAllMessages); err != nil {
		return nil, err
	}
	return conn, nil
}

func expect(conn *chatclient.Conn, want model.EventType) (chatclient.Event, error) {
	ev, err := conn.Next()
	if err != nil {
		return chatclient.Event{}, err
	}
	if ev.Type != want {
		return chatclient.Event{}, fmt.Errorf("got %s event (%s), want %s", ev.Type, ev.Error, want)
	}
	return ev, nil
}
