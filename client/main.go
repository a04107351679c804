package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/mahaj/duochat/pkg/chatclient"
	"github.com/mahaj/duochat/pkg/model"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

type options struct {
	gateway  string
	api      string
	username string
	password string
	with     string
}

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Terminal chat client",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(cmd.Context(), opts)
		},
		SilenceUsage: true,
	}
	cmd.Flags().StringVar(&opts.gateway, "addr", "ws://localhost:8080/ws", "gateway websocket url")
	cmd.Flags().StringVar(&opts.api, "api", "http://localhost:8081", "api service address")
	cmd.Flags().StringVarP(&opts.username, "user", "u", "", "username (registered on first use)")
	cmd.Flags().StringVarP(&opts.password, "password", "p", "", "password")
	cmd.Flags().StringVar(&opts.with, "dm", "", "username to talk to; empty joins the global channel")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func runClient(ctx context.Context, opts options) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	api := chatclient.NewAPI(opts.api)
	session, err := api.LoginOrRegister(ctx, opts.username, opts.password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	fmt.Printf("Logged in as %s (id %d)\n", session.User.Username, session.User.ID)

	var other *int64
	if opts.with != "" {
		other, err = resolvePeer(ctx, api, session, opts.with)
		if err != nil {
			return err
		}
	}

	conn, err := chatclient.Dial(ctx, opts.gateway, session.Token)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Joining before fetching can show a message twice; printed ids settle it.
	if err := conn.Join(other); err != nil {
		return err
	}
	if err := conn.Fetch(other); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- readLoop(conn) }()
	go writeLoop(conn, other, stop)

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		fmt.Println("\nbye")
		return nil
	}
}

func resolvePeer(ctx context.Context, api *chatclient.API, s chatclient.Session, name string) (*int64, error) {
	if id, err := strconv.ParseInt(name, 10, 64); err == nil {
		return &id, nil
	}
	users, err := api.Users(ctx, s.Token)
	if err != nil {
		return nil, err
	}
	u, ok := lo.Find(users, func(u model.User) bool { return u.Username == name })
	if !ok {
		return nil, fmt.Errorf("no user named %q", name)
	}
	return &u.ID, nil
}

func readLoop(conn *chatclient.Conn) error {
	for {
		ev, err := conn.Next()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		switch ev.Type {
		case model.EventAllMessages:
			fmt.Printf("\r-- %d earlier messages --\n", len(ev.History))
			for _, m := range ev.History {
				printMessage(m)
			}
		case model.EventReceiveMessage:
			printMessage(*ev.Message)
		case model.EventError:
			fmt.Printf("\r!! %s\n", ev.Error)
		}
		fmt.Print("> ")
	}
}

func printMessage(m model.ReceiveMessage) {
	who := m.Username
	if m.FromSelf {
		who = "you"
	}
	at := m.Timestamp
	if t, err := time.Parse(time.RFC3339Nano, m.Timestamp); err == nil {
		at = t.Local().Format("15:04:05")
	}
	fmt.Printf("\r[%s] #%d %s: %s\n", at, m.ID, who, m.Content)
}

func writeLoop(conn *chatclient.Conn, other *int64, quit func()) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		switch text {
		case "":
			fmt.Print("> ")
			continue
		case "/quit":
			quit()
			return
		case "/history":
			if err := conn.Fetch(other); err != nil {
				fmt.Println("write:", err)
				quit()
				return
			}
			continue
		}
		if err := conn.Send(text, other); err != nil {
			fmt.Println("write:", err)
			quit()
			return
		}
	}
	quit()
}
