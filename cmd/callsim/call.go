package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/eleven-am/voice-callcenter/internal/audio"
	"github.com/eleven-am/voice-callcenter/internal/dto"
)

const frameDuration = 20 * time.Millisecond

var callOpts struct {
	output   string
	customer int64
	prompt   string
	linger   time.Duration
}

var callCmd = &cobra.Command{
	Use:   "call <caller.pcm>",
	Short: "Start a call and stream a raw 16 kHz PCM16 file as the caller",
	Args:  cobra.ExactArgs(1),
	RunE:  runCall,
}

func init() {
	callCmd.Flags().StringVar(&callOpts.output, "out", "reply.pcm", "file receiving the synthesized reply audio")
	callCmd.Flags().Int64Var(&callOpts.customer, "customer", 1, "customer id")
	callCmd.Flags().StringVar(&callOpts.prompt, "prompt", "You are a helpful call center agent.", "system prompt")
	callCmd.Flags().DurationVar(&callOpts.linger, "linger", 10*time.Second, "time to wait for replies after the input ends")
	rootCmd.AddCommand(callCmd)
}

func runCall(cmd *cobra.Command, args []string) error {
	pcm, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	callID := "sim-" + uuid.NewString()[:8]
	call, err := startCall(dto.StartCallRequest{CallID: callID, CustomerID: callOpts.customer, SystemPrompt: callOpts.prompt})
	if err != nil {
		return fmt.Errorf("start call: %w", err)
	}
	fmt.Printf("[SIM] Started call %s (session %s)\n", call.CallID, call.SessionID)

	eventsConn, _, err := websocket.DefaultDialer.Dial(wsURL("/events?call_id="+url.QueryEscape(callID)), nil)
	if err != nil {
		return fmt.Errorf("dial events: %w", err)
	}
	defer eventsConn.Close()
	go printEvents(eventsConn)

	media, resp, err := websocket.DefaultDialer.Dial(wsURL("/calls/"+url.PathEscape(callID)+"/media"), nil)
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(resp.Body)
			fmt.Printf("[SIM] Media dial failed: status=%d, body=%s\n", resp.StatusCode, string(body))
		}
		return fmt.Errorf("dial media: %w", err)
	}
	defer media.Close()

	out, err := os.Create(callOpts.output)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer out.Close()
	go receiveAudio(media, out)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	frames := audio.SplitFrames(pcm, audio.PCMBytesFor(frameDuration))
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()
	fmt.Printf("[SIM] Streaming %s of caller audio\n", audio.PCMDuration(len(pcm)))

stream:
	for _, frame := range frames {
		select {
		case <-sig:
			break stream
		case <-ticker.C:
		}
		if err := media.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			fmt.Println("[SIM] write failed:", err)
			break
		}
	}

	select {
	case <-sig:
	case <-time.After(callOpts.linger):
	}

	fmt.Println("[SIM] Hanging up")
	_ = media.WriteJSON(map[string]string{"type": "hangup"})
	time.Sleep(500 * time.Millisecond)
	return nil
}

func startCall(req dto.StartCallRequest) (*dto.CallResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(apiURL("/calls"), "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(msg))
	}
	var call dto.CallResponse
	if err := json.NewDecoder(resp.Body).Decode(&call); err != nil {
		return nil, err
	}
	return &call, nil
}

func receiveAudio(conn *websocket.Conn, w io.Writer) {
	var total int
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			fmt.Printf("[SIM] Media closed after %s of reply audio\n", audio.PCMDuration(total))
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		total += len(data)
		if _, err := w.Write(data); err != nil {
			fmt.Println("[SIM] write output:", err)
			return
		}
	}
}
