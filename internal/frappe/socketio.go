package frappe

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Engine.IO packet types.
const (
	eioOpen    = '0'
	eioClose   = '1'
	eioPing    = '2'
	eioPong    = '3'
	eioMessage = '4'
)

// Socket.IO packet types, carried inside Engine.IO messages.
const (
	sioConnect      = '0'
	sioDisconnect   = '1'
	sioEvent        = '2'
	sioConnectError = '4'
)

// packet is a decoded Engine.IO frame. For message frames the Socket.IO
// fields are set too.
type packet struct {
	eio       byte
	sio       byte
	namespace string
	data      json.RawMessage
}

var errEmptyPacket = errors.New("empty packet")

// parsePacket decodes a text frame such as
// `42/site,["event",{...}]` or `0{"sid":"..."}`.
func parsePacket(frame string) (packet, error) {
	if frame == "" {
		return packet{}, errEmptyPacket
	}
	p := packet{eio: frame[0]}
	rest := frame[1:]
	if p.eio != eioMessage {
		p.data = json.RawMessage(rest)
		return p, nil
	}
	if rest == "" {
		return packet{}, fmt.Errorf("message frame without socket.io type")
	}
	p.sio = rest[0]
	rest = rest[1:]

	p.namespace = "/"
	if strings.HasPrefix(rest, "/") {
		ns, tail, ok := strings.Cut(rest, ",")
		if !ok {
			ns, tail = rest, ""
		}
		p.namespace = ns
		rest = tail
	}
	// Skip an ack id.
	rest = strings.TrimLeft(rest, "0123456789")
	if rest != "" {
		p.data = json.RawMessage(rest)
	}
	return p, nil
}

// event splits an EVENT payload into its name and first argument.
func (p packet) event() (string, json.RawMessage, error) {
	var args []json.RawMessage
	if err := json.Unmarshal(p.data, &args); err != nil {
		return "", nil, fmt.Errorf("decoding event: %w", err)
	}
	if len(args) == 0 {
		return "", nil, errors.New("event without a name")
	}
	var name string
	if err := json.Unmarshal(args[0], &name); err != nil {
		return "", nil, fmt.Errorf("decoding event name: %w", err)
	}
	if len(args) < 2 {
		return name, nil, nil
	}
	return name, args[1], nil
}

// connectFrame asks the server to join a namespace.
func connectFrame(namespace string) string {
	if namespace == "" || namespace == "/" {
		return string([]byte{eioMessage, sioConnect})
	}
	return string([]byte{eioMessage, sioConnect}) + namespace + ","
}

// connectErrorMessage extracts the reason from a CONNECT_ERROR payload.
func connectErrorMessage(data json.RawMessage) string {
	var body struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &body) == nil && body.Message != "" {
		return body.Message
	}
	return string(data)
}
