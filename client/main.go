package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wfunc/gumball/models"
	"github.com/wfunc/gumball/network"
)

var commands = map[string]string{
	"insert":   "insert_quarter",
	"eject":    "eject_quarter",
	"crank":    "turn_crank",
	"dispense": "dispense",
}

// send formats and sends a message to the WebSocket server.
func send(c *websocket.Conn, msgID uint16, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	packet, err := network.EncodePacket(msgID, data)
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.BinaryMessage, packet)
}

func main() {
	host := flag.String("addr", "localhost:8080", "server address")
	machineID := flag.String("machine", "lobby-1", "machine to watch")
	flag.Parse()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	u := url.URL{Scheme: "ws", Host: *host, Path: "/ws"}
	log.Printf("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}
			packet, err := network.DecodePacket(message)
			if err != nil {
				log.Printf("Received invalid packet of size %d", len(message))
				continue
			}
			switch packet.MsgID {
			case network.MsgTypeMachineState:
				var status models.MachineStatus
				json.Unmarshal(packet.Data, &status)
				log.Printf("<- %s: %s, %d left", status.MachineID, status.State, status.Count)
			case network.MsgTypeError:
				var reply models.ErrorReply
				json.Unmarshal(packet.Data, &reply)
				log.Printf("<- rejected (%s): %s", reply.Code, reply.Message)
			default:
				log.Printf("<- RECV (ID: %d): %s", packet.MsgID, string(packet.Data))
			}
		}
	}()

	if err := send(c, network.MsgTypeWatch, models.WatchRequest{MachineID: *machineID}); err != nil {
		log.Println("Write error:", err)
		return
	}

	log.Println("Client started. Commands: insert, eject, crank, dispense.")

	lines := make(chan string)
	go func() {
		reader := bufio.NewScanner(os.Stdin)
		for reader.Scan() {
			lines <- strings.TrimSpace(reader.Text())
		}
		close(lines)
	}()

	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("Write close error:", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		case text, ok := <-lines:
			if !ok {
				return
			}
			action, known := commands[text]
			if !known {
				log.Printf("Unknown command %q", text)
				continue
			}
			if err := send(c, network.MsgTypeOperate, models.OperateRequest{Action: action}); err != nil {
				log.Println("Write error:", err)
				return
			}
			log.Printf("-> SENT: %s", action)
		}
	}
}
