package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"clinichat/internal/channel"
	"clinichat/internal/config"
	"clinichat/internal/console"
	"clinichat/internal/identity"
	"clinichat/internal/router"
	"clinichat/internal/widget"
	"clinichat/pkg/types"
)

var (
	chatUser        string
	chatName        string
	chatRole        string
	chatIdentityURL string
	chatToken       string
)

func init() {
	chatCmd.Flags().StringVar(&chatUser, "user", "", "user id (email)")
	chatCmd.Flags().StringVar(&chatName, "name", "", "display name")
	chatCmd.Flags().StringVar(&chatRole, "role", "", "role: PATIENT, STAFF or DOCTOR")
	chatCmd.Flags().StringVar(&chatIdentityURL, "identity-url", "", "resolve identity from this account service instead of flags")
	chatCmd.Flags().StringVar(&chatToken, "token", "", "bearer token for the account service")
	rootCmd.AddCommand(chatCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Run the terminal chat client",
	RunE:  runChat,
}

func resolveIdentity(cfg *config.Config) (types.Identity, error) {
	url := chatIdentityURL
	if url == "" {
		url = cfg.Chat.IdentityURL
	}
	if url != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return identity.NewResolver(url, chatToken).Resolve(ctx)
	}

	role, err := types.ParseRole(chatRole)
	if err != nil {
		return types.Identity{}, fmt.Errorf("--role: %w", err)
	}
	id := types.Identity{UserID: chatUser, DisplayName: chatName, Role: role}
	if err := id.Validate(); err != nil {
		return types.Identity{}, err
	}
	return id, nil
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg := config.Load(configPath)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	id, err := resolveIdentity(cfg)
	if err != nil {
		// Identity failure leaves chat unavailable, it is not a crash.
		log.Printf("identity resolution failed: %v", err)
		fmt.Println("chat unavailable: could not resolve identity")
		return nil
	}

	retry := &channel.RetryPolicy{
		InitialDelay: cfg.Channel.ReconnectDelay,
		Multiplier:   2.0,
		MaxDelay:     cfg.Channel.ReconnectMax,
	}
	ch := channel.NewManager(channel.NewWebSocketTransport(), cfg.Channel.URL, retry)
	defer ch.Teardown()
	rt := router.NewRouter(ch)

	fmt.Printf("connected as %s (%s)\n", id.DisplayName, id.Role)
	if id.Role == types.RolePatient {
		return runPatientLoop(ch, rt, id, widget.Options{
			DedupWindow:   cfg.Chat.DedupWindow,
			TypingTimeout: cfg.Chat.TypingTimeout,
		})
	}
	return runStaffLoop(ch, rt, id, console.Options{
		DedupWindow:   cfg.Chat.DedupWindow,
		TypingTimeout: cfg.Chat.TypingTimeout,
	})
}

func watchStatus(ch *channel.Manager) {
	ch.OnStatusChange(func(connected bool) {
		if connected {
			fmt.Println("[channel] connected")
		} else {
			fmt.Println("[channel] disconnected, retrying")
		}
	})
}

func runPatientLoop(ch *channel.Manager, rt *router.Router, id types.Identity, opts widget.Options) error {
	w, err := widget.New(ch, rt, id, opts)
	if err != nil {
		return err
	}

	// Print listeners run after the widget's own, so snapshots are current.
	rt.On(router.CategoryChat, func(ev types.ChannelEvent) {
		if ev.SenderID != id.UserID && w.Snapshot().State == "MATCHED" {
			fmt.Printf("%s: %s\n", ev.SenderName, ev.Content)
		}
	})
	rt.On(router.CategoryNotification, func(ev types.ChannelEvent) {
		switch snap := w.Snapshot(); {
		case ev.Type == types.EventTypeStaffAvailable && snap.StaffID == ev.SenderID:
			fmt.Printf("[session] matched with %s\n", snap.StaffName)
		case ev.Type == types.EventTypeEndSession && snap.State == "IDLE":
			fmt.Println("[session] ended by staff")
		}
	})
	watchStatus(ch)

	if err := w.Open(); err != nil {
		return err
	}

	fmt.Println("commands: /request, /end, /quit; anything else is sent as a message")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == "/quit":
			return nil
		case line == "/request":
			if w.RequestStaff() {
				fmt.Println("[session] waiting for staff")
			} else {
				fmt.Println("[session] cannot request right now")
			}
		case line == "/end":
			w.EndSession()
			fmt.Println("[session] ended")
		default:
			if _, ok := w.SendMessage(line); !ok {
				fmt.Println("[session] not in a session, use /request first")
			}
		}
	}
	return scanner.Err()
}

func runStaffLoop(ch *channel.Manager, rt *router.Router, id types.Identity, opts console.Options) error {
	c, err := console.New(ch, rt, id, opts)
	if err != nil {
		return err
	}

	rt.On(router.CategoryChat, func(ev types.ChannelEvent) {
		if ev.SenderID != id.UserID && c.Snapshot().ActiveID == ev.SenderID {
			fmt.Printf("%s: %s\n", ev.SenderName, ev.Content)
		}
	})
	rt.On(router.CategoryNotification, func(ev types.ChannelEvent) {
		switch ev.Type {
		case types.EventTypePatientConnected, types.EventTypeRequestStaff:
			fmt.Printf("[queue] %s (%s) is waiting, /accept %s\n", ev.SenderName, ev.SenderID, ev.SenderID)
		case types.EventTypePatientDisconnected:
			fmt.Printf("[queue] %s left\n", ev.SenderID)
		case types.EventTypeEndSession:
			if c.Snapshot().ActiveID == "" {
				fmt.Println("[session] ended by patient")
			}
		}
	})
	watchStatus(ch)

	if err := c.Open(); err != nil {
		return err
	}

	fmt.Println("commands: /available, /unavailable, /pending, /accept <patientId>, /end, /quit")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == "/quit":
			return nil
		case line == "/available":
			c.SetAvailable(true)
			fmt.Println("[presence] available")
		case line == "/unavailable":
			c.SetAvailable(false)
			fmt.Println("[presence] unavailable")
		case line == "/pending":
			pending := c.Snapshot().Pending
			if len(pending) == 0 {
				fmt.Println("[queue] empty")
			}
			for _, p := range pending {
				fmt.Printf("[queue] %s (%s)\n", p.PatientName, p.PatientID)
			}
		case strings.HasPrefix(line, "/accept "):
			patientID := strings.TrimSpace(strings.TrimPrefix(line, "/accept "))
			if err := c.Accept(patientID); err != nil {
				fmt.Printf("[session] %v\n", err)
			} else {
				fmt.Printf("[session] chatting with %s\n", c.Snapshot().ActiveName)
			}
		case line == "/end":
			c.EndSession()
			fmt.Println("[session] ended")
		default:
			if _, ok := c.SendMessage(line); !ok {
				fmt.Println("[session] no active patient, /accept one first")
			}
		}
	}
	return scanner.Err()
}
