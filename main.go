package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"workchat/internal/api"
	"workchat/internal/chat"
	"workchat/internal/config"
	"workchat/internal/content"
	"workchat/internal/models"
	"workchat/internal/presence"
	"workchat/internal/session"
	"workchat/internal/transport"

	"golang.org/x/sync/errgroup"
)

func run(ctx context.Context) error {
	email := flag.String("email", "", "Email to log in with")
	password := flag.String("password", "", "Password to log in with")
	register := flag.Bool("register", false, "Create a new account instead of logging in")
	username := flag.String("username", "", "Username for registration")
	role := flag.String("role", string(models.RoleCustomer), "Role for registration (customer, agent, designer, merchant, admin)")
	logout := flag.Bool("logout", false, "Forget the stored session and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	store, err := session.Open(cfg.StateFile)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if *logout {
		return store.Clear()
	}

	gateway := api.New(cfg.APIBaseURL, cfg.HTTPTimeout, store)

	user, err := ensureSession(ctx, gateway, store, *email, *password, *register, *username, *role)
	if err != nil {
		return err
	}

	registry := transport.NewRegistry()
	socket := transport.NewClient(cfg.SocketURL, registry)
	if err := socket.Connect(ctx, store.Token()); err != nil {
		// Realtime is best effort; REST still works.
		log.Printf("Socket connection failed: %v", err)
	}
	defer socket.Disconnect()

	controller := chat.NewController(chat.Config{
		User:     user,
		Gateway:  gateway,
		Socket:   socket,
		Presence: presence.NewTracker(ctx, cfg.TypingTTL),
		Cache:    store,
	})

	// Live messages for the open conversation print as they arrive.
	socket.On(transport.EventNewMessage, func(data json.RawMessage) {
		printInbound(controller, data)
	})

	if err := controller.Start(ctx); err != nil {
		return err
	}
	defer controller.Stop()

	fmt.Printf("Welcome, %s (%s). Type /help for commands.\n", user.Username, user.Role)
	printConversations(controller)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return inputLoop(gCtx, controller, store)
	})

	g.Go(func() error {
		<-gCtx.Done()
		// Unblock the stdin read by closing it on shutdown.
		_ = os.Stdin.Close()
		return nil
	})

	return g.Wait()
}

func ensureSession(ctx context.Context, gateway *api.Client, store *session.Store, email, password string, register bool, username, role string) (models.User, error) {
	if email == "" {
		if store.Token() == "" {
			return models.User{}, errors.New("no stored session: run with -email and -password (add -register -username to sign up)")
		}
		user, err := store.User()
		if err != nil {
			return models.User{}, fmt.Errorf("stored session is incomplete, log in again: %w", err)
		}
		return user, nil
	}

	var result api.Result[models.User]
	if register {
		if err := content.ValidateUsername(username); err != nil {
			return models.User{}, err
		}
		result = gateway.Register(ctx, username, email, password, models.Role(role))
	} else {
		result = gateway.Login(ctx, email, password)
	}

	if !result.Success {
		return models.User{}, fmt.Errorf("authentication failed: %s", result.Message)
	}

	if err := store.SaveToken(result.Token); err != nil {
		return models.User{}, err
	}
	if err := store.SaveUser(result.Data); err != nil {
		return models.User{}, err
	}

	return result.Data, nil
}

func inputLoop(ctx context.Context, controller *chat.Controller, store *session.Store) error {
	scanner := bufio.NewScanner(os.Stdin)
	prompt(controller)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == "/help":
			printHelp()
		case line == "/list":
			printConversations(controller)
		case line == "/messages":
			printMessages(controller)
		case line == "/users":
			printUsers(ctx, controller)
		case line == "/quit":
			return nil
		case line == "/logout":
			if err := store.Clear(); err != nil {
				return err
			}
			fmt.Println("Logged out.")
			return nil
		case strings.HasPrefix(line, "/open "):
			openConversation(ctx, controller, strings.TrimSpace(strings.TrimPrefix(line, "/open ")))
		case strings.HasPrefix(line, "/new "):
			participantID := strings.TrimSpace(strings.TrimPrefix(line, "/new "))
			if err := controller.StartConversation(ctx, participantID); err != nil {
				fmt.Printf("Could not start conversation: %v\n", err)
			} else {
				printMessages(controller)
			}
		case strings.HasPrefix(line, "/"):
			fmt.Println("Unknown command. Type /help.")
		default:
			if err := controller.Send(ctx, line); err != nil {
				fmt.Printf("Send failed: %v\n", err)
			}
		}
		prompt(controller)
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func openConversation(ctx context.Context, controller *chat.Controller, arg string) {
	conversations := controller.Conversations()
	id := arg
	if n, err := strconv.Atoi(arg); err == nil && n >= 1 && n <= len(conversations) {
		id = conversations[n-1].ID
	}
	if err := controller.Select(ctx, id); err != nil {
		fmt.Printf("Could not open conversation: %v\n", err)
		return
	}
	printMessages(controller)
}

func printConversations(controller *chat.Controller) {
	conversations := controller.Conversations()
	if len(conversations) == 0 {
		fmt.Println("No conversations yet. Use /users and /new <id> to start one.")
		return
	}
	for i, conv := range conversations {
		marker := " "
		if selected, ok := controller.Selected(); ok && selected.ID == conv.ID {
			marker = "*"
		}
		unread := ""
		if conv.Unread > 0 {
			unread = fmt.Sprintf(" (%d unread)", conv.Unread)
		}
		status := "offline"
		if conv.Online {
			status = "online"
		}
		fmt.Printf("%s %d. %s [%s, %s]%s — %s\n", marker, i+1, conv.Name, conv.Role, status, unread, conv.LastMessage)
	}
}

func printMessages(controller *chat.Controller) {
	selected, ok := controller.Selected()
	if !ok {
		fmt.Println("No conversation selected.")
		return
	}
	fmt.Printf("--- %s ---\n", selected.Name)
	for _, msg := range controller.Messages() {
		printMessage(msg)
	}
	if userID, ok := controller.TypingUser(); ok {
		fmt.Printf("... %s is typing\n", userID)
	}
}

func printUsers(ctx context.Context, controller *chat.Controller) {
	result := controller.DiscoverUsers(ctx)
	if !result.Success {
		fmt.Printf("Could not fetch users: %s\n", result.Message)
		return
	}
	for _, u := range result.Data {
		status := "offline"
		if u.IsOnline {
			status = "online"
		}
		fmt.Printf("%s — %s [%s, %s]\n", u.ID, u.Username, u.Role, status)
	}
}

func printInbound(controller *chat.Controller, data json.RawMessage) {
	selected, ok := controller.Selected()
	if !ok {
		return
	}
	var msg models.Message
	if err := json.Unmarshal(data, &msg); err != nil || msg.ConversationID != selected.ID {
		return
	}
	if msg.SenderID == controller.User().ID {
		return
	}
	printMessage(msg)
}

func printMessage(msg models.Message) {
	when := time.UnixMilli(msg.Timestamp).Format("15:04")
	name := msg.SenderName
	if msg.IsOwn {
		name = "you"
	}
	suffix := ""
	switch msg.Delivery {
	case models.DeliveryPending:
		suffix = " (sending...)"
	case models.DeliveryFailed:
		suffix = " (failed)"
	}
	fmt.Printf("[%s] %s: %s%s\n", when, name, msg.Content, suffix)
}

func prompt(controller *chat.Controller) {
	if selected, ok := controller.Selected(); ok {
		fmt.Printf("%s> ", selected.Name)
	} else {
		fmt.Print("> ")
	}
}

func printHelp() {
	fmt.Println(`Commands:
  /list          show conversations
  /open <n|id>   open a conversation
  /messages      reprint the open conversation
  /users         list users to chat with
  /new <userID>  start a conversation with a user
  /logout        forget the stored session and exit
  /quit          exit
Anything else is sent as a message to the open conversation.`)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Application error: %v", err)
	}
}
