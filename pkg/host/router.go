package host

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Connection is a directed graph edge between two ports, by fully qualified
// name.
type Connection struct {
	Source      string
	Destination string
}

// Link reports one successfully established (or already established)
// connection.
type Link struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// LinkError reports one connection that could not be established.
type LinkError struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Error string `json:"error"`
}

// Report is the outcome of one routing pass.
type Report struct {
	Connected []Link      `json:"connected"`
	Failed    []LinkError `json:"failed"`
}

// Connector is the connection-establishing subset of Client.
type Connector interface {
	Connect(source, destination string) error
}

// Router applies a static list of port connections to the audio graph. A
// pass is idempotent: already-connected pairs count as connected, failures
// are collected per pair and retried on the next pass, never fatal.
type Router struct {
	conn  Connector
	pairs []Connection
	log   *logrus.Entry
}

// NewRouter creates a router for the given connection list.
func NewRouter(conn Connector, pairs []Connection, log *logrus.Logger) *Router {
	return &Router{
		conn:  conn,
		pairs: pairs,
		log:   log.WithField("component", "router"),
	}
}

// Connections returns the configured connection list.
func (r *Router) Connections() []Connection {
	return r.pairs
}

// Reconnect applies every configured connection and reports the outcome.
// Safe to run repeatedly and from the watchdog.
func (r *Router) Reconnect() Report {
	report := Report{
		Connected: make([]Link, 0, len(r.pairs)),
		Failed:    make([]LinkError, 0),
	}

	for _, pair := range r.pairs {
		if err := r.conn.Connect(pair.Source, pair.Destination); err != nil {
			report.Failed = append(report.Failed, LinkError{
				From:  pair.Source,
				To:    pair.Destination,
				Error: err.Error(),
			})
			continue
		}
		report.Connected = append(report.Connected, Link{
			From: pair.Source,
			To:   pair.Destination,
		})
	}

	return report
}

// Watch re-applies the routing every interval until stop is closed. Routing
// re-establishes itself after server restarts or dropped connections; the
// interval bounds how long a gap can last.
func (r *Router) Watch(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			report := r.Reconnect()
			for _, failure := range report.Failed {
				r.log.WithFields(logrus.Fields{
					"from":  failure.From,
					"to":    failure.To,
					"error": failure.Error,
				}).Warn("Routing connection failed, will retry")
			}
		}
	}
}

// DefaultConnections is the static routing table: capture device into the
// secondary inputs, media player into the primary inputs, outputs to the
// speakers. Port names come from the deployed PipeWire-JACK graph.
func DefaultConnections(clientName string) []Connection {
	return []Connection{
		{"MS210x Video Grabber [EasierCAP] Analog Stereo:capture_FL", clientName + ":" + PortSecondaryInL},
		{"MS210x Video Grabber [EasierCAP] Analog Stereo:capture_FR", clientName + ":" + PortSecondaryInR},
		{"Chromium:output_FL", clientName + ":" + PortPrimaryInL},
		{"Chromium:output_FR", clientName + ":" + PortPrimaryInR},
		{clientName + ":" + PortOutputL, "Fosi Audio Q6 Analog Stereo:playback_FL"},
		{clientName + ":" + PortOutputR, "Fosi Audio Q6 Analog Stereo:playback_FR"},
	}
}
