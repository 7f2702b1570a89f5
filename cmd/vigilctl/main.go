package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vigil/backend/pkg/sdk"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	baseURL := os.Getenv("VIGIL_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	client := sdk.NewClient(sdk.Config{BaseURL: baseURL})
	ctx := context.Background()

	switch os.Args[1] {
	case "start":
		cmdStart(ctx, client)
	case "list":
		cmdList(ctx, client)
	case "status":
		cmdStatus(ctx, client)
	case "stop":
		cmdStop(ctx, client)
	case "reauth":
		cmdReauth(ctx, client)
	case "enroll":
		cmdEnroll(ctx, client)
	case "leases":
		cmdLeases(ctx, client)
	case "watch":
		cmdWatch(baseURL)
	case "version":
		fmt.Printf("vigilctl v%s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Vigil CLI v` + version + `

Usage: vigilctl <command> [args]

Commands:
  start <user-id>             Start continuous verification
  list                        List running sessions
  status <session-id>         Show trust score and enforcement state
  stop <session-id>           Stop a session and release its leases
  reauth <session-id>         Confirm an explicit re-authentication
  enroll <user-id> [signals]  Capture reference templates (face,liveness,behavior)
  leases                      Show the capture-resource lease table
  watch [session-id]          Stream live events over WebSocket
  version                     Print version

Environment:
  VIGIL_URL   Backend URL (default: http://localhost:8080)

Examples:
  vigilctl enroll alice face,behavior
  vigilctl start alice
  vigilctl watch`)
}

func arg(n int, name string) string {
	if len(os.Args) <= n {
		fmt.Fprintf(os.Stderr, "Error: %s is required\n", name)
		os.Exit(1)
	}
	return os.Args[n]
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func cmdStart(ctx context.Context, client *sdk.Client) {
	id, err := client.StartSession(ctx, arg(2, "user-id"))
	if err != nil {
		if sdk.IsConflict(err) {
			fmt.Fprintln(os.Stderr, "Capture device busy — stop the running session first")
		}
		fail(err)
	}
	fmt.Println(id)
}

func cmdList(ctx context.Context, client *sdk.Client) {
	sessions, err := client.ListSessions(ctx)
	if err != nil {
		fail(err)
	}
	if len(sessions) == 0 {
		fmt.Println("No running sessions")
		return
	}
	for _, s := range sessions {
		fmt.Printf("%s  %-8s  trust %.3f\n", s.SessionID, s.State, s.TrustState.EMAValue)
	}
}

func cmdStatus(ctx context.Context, client *sdk.Client) {
	detail, err := client.GetSession(ctx, arg(2, "session-id"))
	if err != nil {
		fail(err)
	}

	s := detail.Session
	fmt.Printf("Session:    %s\n", s.SessionID)
	fmt.Printf("State:      %s\n", s.State)
	fmt.Printf("Trust:      %.3f (instant %.3f, tick %d)\n",
		s.TrustState.EMAValue, s.TrustState.LastInstant, s.TrustState.TickCount)
	if s.DegradedTicks > 0 {
		fmt.Printf("Degraded:   %d consecutive ticks with no signal\n", s.DegradedTicks)
	}
	if len(detail.History) > 0 {
		fmt.Println("\nTransitions:")
		for _, tr := range detail.History {
			fmt.Printf("  %s  %d -> %d  (ema %.3f)\n",
				tr.At.Format(time.RFC3339), tr.From, tr.To, tr.EMAValue)
		}
	}
}

func cmdStop(ctx context.Context, client *sdk.Client) {
	if err := client.StopSession(ctx, arg(2, "session-id")); err != nil {
		fail(err)
	}
	fmt.Println("Stopped")
}

func cmdReauth(ctx context.Context, client *sdk.Client) {
	if err := client.ConfirmReauthentication(ctx, arg(2, "session-id")); err != nil {
		fail(err)
	}
	fmt.Println("Confirmed")
}

func cmdEnroll(ctx context.Context, client *sdk.Client) {
	userID := arg(2, "user-id")
	var signals []string
	if len(os.Args) > 3 {
		signals = strings.Split(os.Args[3], ",")
	}
	if err := client.Enroll(ctx, userID, signals...); err != nil {
		fail(err)
	}
	fmt.Println("Enrolled")
}

func cmdLeases(ctx context.Context, client *sdk.Client) {
	records, err := client.Leases(ctx)
	if err != nil {
		fail(err)
	}
	if len(records) == 0 {
		fmt.Println("No leases held")
		return
	}
	for _, r := range records {
		fmt.Printf("%-16s held by %s since %s\n",
			r.Resource, r.Holder, r.AcquiredAt.Format(time.RFC3339))
	}
}

// cmdWatch tails the event stream until interrupted.
func cmdWatch(baseURL string) {
	wsURL := strings.Replace(baseURL, "http", "ws", 1) + "/ws/events"
	if len(os.Args) > 2 {
		wsURL += "?session_id=" + os.Args[2]
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		fail(err)
	}
	defer conn.Close()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	go func() {
		<-interrupt
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		os.Exit(0)
	}()

	fmt.Printf("Watching %s\n", wsURL)
	for {
		var ev sdk.Event
		if err := conn.ReadJSON(&ev); err != nil {
			fail(err)
		}
		payload, _ := json.Marshal(ev.Data)
		fmt.Printf("%s  %-20s %s  %s\n",
			ev.Time.Format("15:04:05.000"), ev.Type, ev.SessionID, payload)
	}
}
