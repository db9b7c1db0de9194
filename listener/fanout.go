// Package listener opens the server's listening sockets: for each
// configured server URL it walks the event loop's registered
// ConnectionManagers for one matching the URL's transport scheme and asks
// it to start listening.
package listener

import (
	"context"
	"net/url"
	"strconv"

	liblog "github.com/nabbar/golib/logger"

	"github.com/nabbar/opcua-core/eventloop"
	"github.com/nabbar/opcua-core/status"
)

// DefaultURL is used when a server's configuration carries no URLs at all.
const DefaultURL = "opc.tcp://:4840"

// Slot is one opened (or attempted) listening socket.
type Slot struct {
	URL          string
	Manager      eventloop.ConnectionManager
	ConnectionID eventloop.ConnectionID
	Opened       bool
}

// Callback is invoked by an opened listening socket on every incoming
// connection event.
type Callback = eventloop.NetworkCallback

// OpenAll opens one listening socket per entry in urls (or DefaultURL when
// urls is empty), trying connection managers registered with loop. Failure
// to open any individual URL is soft: it is logged and the remaining URLs
// are still attempted, matching the server's "still useful for reverse
// connections" tolerance for a fully listener-less startup.
func OpenAll(loop eventloop.Loop, urls []string, cb Callback, defLog liblog.FuncLog) []Slot {
	if len(urls) == 0 {
		urls = []string{DefaultURL}
	}

	slots := make([]Slot, 0, len(urls))
	for _, raw := range urls {
		slot, err := openOne(loop, raw, cb)
		if err != nil {
			logWarn(defLog, "listener: "+err.Error())
		}
		slots = append(slots, slot)
	}
	return slots
}

func openOne(loop eventloop.Loop, rawURL string, cb Callback) (Slot, error) {
	scheme, host, port, err := parseServerURL(rawURL)
	if err != nil {
		return Slot{URL: rawURL}, status.InvalidArgument("invalid server url", err)
	}

	for _, src := range loop.EventSources() {
		cm, ok := src.(eventloop.ConnectionManager)
		if !ok || cm.Protocol() != scheme {
			continue
		}

		params := eventloop.ConnectionParams{
			"port":   strconv.Itoa(int(port)),
			"listen": "true",
		}
		if host != "" {
			params["address"] = host
		}

		id, err := cm.OpenConnection(context.Background(), params, cb)
		if err != nil {
			continue // try the next matching manager, if any
		}
		return Slot{URL: rawURL, Manager: cm, ConnectionID: id, Opened: true}, nil
	}

	return Slot{URL: rawURL}, status.Internal("no connection manager accepted a listen request")
}

func parseServerURL(raw string) (scheme, host string, port uint16, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", 0, err
	}

	scheme = schemeToTransport(u.Scheme)
	host = u.Hostname()
	port = 4840
	if p := u.Port(); p != "" {
		n, convErr := strconv.Atoi(p)
		if convErr != nil {
			return "", "", 0, convErr
		}
		port = uint16(n)
	}
	return scheme, host, port, nil
}

// schemeToTransport maps a URL scheme to the protocol name a
// ConnectionManager advertises. Only tcp is wired today (component O);
// unrecognized schemes fall through unchanged so a future transport can be
// added without touching this function's callers.
func schemeToTransport(scheme string) string {
	switch scheme {
	case "opc.tcp":
		return "tcp"
	default:
		return scheme
	}
}

func logWarn(defLog liblog.FuncLog, msg string) {
	if defLog == nil {
		return
	}
	if l := defLog(); l != nil {
		l.Warning(msg, nil)
	}
}
