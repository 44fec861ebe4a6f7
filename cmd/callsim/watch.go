package main

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/eleven-am/voice-callcenter/internal/events"
)

var watchOpts struct {
	callID string
	types  string
	scope  string
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print call events as they happen",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchOpts.callID, "call", "", "only events of this call")
	watchCmd.Flags().StringVar(&watchOpts.types, "type", "", "comma separated event types")
	watchCmd.Flags().StringVar(&watchOpts.scope, "scope", "instance", "instance or cluster")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	q := url.Values{}
	if watchOpts.callID != "" {
		q.Set("call_id", watchOpts.callID)
	}
	if watchOpts.types != "" {
		q.Set("type", watchOpts.types)
	}
	q.Set("scope", watchOpts.scope)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL("/events?"+q.Encode()), nil)
	if err != nil {
		return fmt.Errorf("dial events: %w", err)
	}
	defer conn.Close()
	printEvents(conn)
	return nil
}

func printEvents(conn *websocket.Conn) {
	for {
		var e events.Event
		if err := conn.ReadJSON(&e); err != nil {
			return
		}
		payload, _ := json.Marshal(e.Payload)
		fmt.Printf("[EVENT] %s %s %s\n", e.CallID, e.Type, string(payload))
	}
}
