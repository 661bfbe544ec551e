package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/ahrdadan/selenified/internal/queue"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var tailCmd = &cobra.Command{
	Use:   "tail <run-id>",
	Short: "Follow the live steps of a run queued on a server",
	Long: `Connect to the server's websocket endpoint and print every status change
and recorded step of the run until it finishes. Exits non-zero when the run
did not pass.`,
	Args: cobra.ExactArgs(1),
	RunE: runTail,
}

func init() {
	rootCmd.AddCommand(tailCmd)
	tailCmd.Flags().String("server", "http://localhost:8000", "Base URL of the Selenified server")
	tailCmd.Flags().Duration("idle-timeout", 10*time.Minute, "Give up when nothing arrives for this long")
}

// streamURL returns the websocket address of a run's events
func streamURL(server, runID string) (string, error) {
	u, err := url.Parse(strings.TrimRight(server, "/"))
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid server URL: %q", server)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server scheme: %s", u.Scheme)
	}
	u.Path += "/selenified/ws"
	u.RawQuery = url.Values{"run_id": {runID}}.Encode()
	return u.String(), nil
}

func runTail(cmd *cobra.Command, args []string) error {
	server, _ := cmd.Flags().GetString("server")
	idle, _ := cmd.Flags().GetDuration("idle-timeout")

	wsURL, err := streamURL(server, args[0])
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(cmd.Context(), wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", wsURL, err)
	}
	defer conn.Close()

	return follow(conn, cmd.OutOrStdout(), idle)
}

// eventMessage is a run event or the error the server answers with
type eventMessage struct {
	queue.Event
	Error string `json:"error"`
}

// follow prints events until the run finishes or the server closes the stream
func follow(conn *websocket.Conn, w io.Writer, idle time.Duration) error {
	var last queue.RunStatus
	for {
		if idle > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(idle))
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) || last.Finished() {
				return outcome(last)
			}
			return fmt.Errorf("stream ended: %w", err)
		}

		var msg eventMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("unexpected message %q: %w", data, err)
		}
		if msg.Error != "" {
			return errors.New(msg.Error)
		}

		if msg.Step != nil {
			printStep(w, *msg.Step)
			continue
		}
		if msg.Status != last || msg.Message != "" {
			fmt.Fprintf(w, "[%s] %3d%% %s\n", msg.Status, msg.Progress, msg.Message)
		}
		last = msg.Status
		if last.Finished() {
			return outcome(last)
		}
	}
}

func outcome(status queue.RunStatus) error {
	switch status {
	case queue.RunStatusPassed:
		return nil
	case "":
		return errors.New("stream closed before the run reported a status")
	default:
		return fmt.Errorf("run %s", status)
	}
}
