// Command node bootstraps a single lab router instance: it loads the
// topology and names configuration files, builds the configured transport
// and routing strategy, and runs the orchestrator with an interactive CLI
// on stdin (spec §1, §6). Bootstrap lives outside the core on purpose —
// the core never reads a file or parses a flag.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/lsrlab/meshrouter/cli"
	"github.com/lsrlab/meshrouter/config"
	"github.com/lsrlab/meshrouter/core/clock"
	"github.com/lsrlab/meshrouter/core/node"
	"github.com/lsrlab/meshrouter/core/routing"
	"github.com/lsrlab/meshrouter/transport"
	"github.com/lsrlab/meshrouter/transport/memory"
	"github.com/lsrlab/meshrouter/transport/pubsub"
	"github.com/lsrlab/meshrouter/transport/streammesh"
)

var (
	selfID       = flag.String("id", "", "this node's id, must appear in the topology and names files")
	topoPath     = flag.String("topo", "", "path to a topo config JSON file")
	namesPath    = flag.String("names", "", "path to a names config JSON file")
	strategyName = flag.String("strategy", "lsr", "routing strategy: lsr or flooding")
	transportFn  = flag.String("transport", "auto", "transport: auto, memory, streammesh, or pubsub")
	meshID       = flag.String("mesh", "lab", "mesh id, namespaces the pubsub broker topics")
	verbose      = flag.Bool("verbose", false, "enable debug logging")
	floodOnMiss  = flag.Bool("flood-on-no-route", false, "fall back to flooding an originated send when no route exists")
)

func main() {
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logs := cli.NewLogBuffer(500)
	logger := slog.New(teeHandler{
		a: slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
		b: logs,
	})
	slog.SetDefault(logger)

	if *selfID == "" {
		fmt.Fprintln(os.Stderr, "node: -id is required")
		os.Exit(2)
	}

	topo, err := loadTopology(*topoPath)
	if err != nil {
		slog.Error("loading topology", "error", err)
		os.Exit(1)
	}
	names, err := loadNames(*namesPath)
	if err != nil {
		slog.Error("loading names", "error", err)
		os.Exit(1)
	}

	tr, err := buildTransport(*transportFn, *selfID, *meshID, names)
	if err != nil {
		slog.Error("building transport", "error", err)
		os.Exit(1)
	}

	strategy, err := buildStrategy(*strategyName, *selfID)
	if err != nil {
		slog.Error("building strategy", "error", err)
		os.Exit(1)
	}
	wireStaticNeighbors(strategy, topo, *selfID)

	n := node.New(node.Config{
		SelfID:         *selfID,
		Strategy:       strategy,
		Transport:      tr,
		Logger:         slog.Default(),
		FloodOnNoRoute: *floodOnMiss,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	go n.Run(ctx)

	repl := cli.NewREPL(n, topo, logs, os.Stdout)
	repl.Run(ctx, os.Stdin)

	stop()
	n.Stop()
}

func loadTopology(path string) (*config.Topology, error) {
	if path == "" {
		return &config.Topology{Neighbors: map[string][]string{}}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return config.ParseTopology(data)
}

func loadNames(path string) (*config.Names, error) {
	if path == "" {
		return &config.Names{Endpoints: map[string]config.Endpoint{}}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return config.ParseNames(data)
}

func buildStrategy(name, self string) (routing.Strategy, error) {
	switch name {
	case "lsr":
		return routing.NewLSR(routing.LSRConfig{SelfID: self, Clock: clock.New()}), nil
	case "flooding":
		return routing.NewFlooding(routing.FloodingConfig{SelfID: self, Clock: clock.New()}), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q (want lsr or flooding)", name)
	}
}

// wireStaticNeighbors seeds the strategy's neighbor table from the static
// topology file so routes exist before any HELLO has been exchanged.
func wireStaticNeighbors(strategy routing.Strategy, topo *config.Topology, self string) {
	for _, id := range topo.NeighborsOf(self) {
		strategy.UpdateNeighbor(id, routing.NeighborInfo{Cost: 1})
	}
}

// buildTransport picks a concrete transport.Transport. "auto" prefers
// pubsub when the self endpoint names a channel, streammesh when it names
// a host/port, and otherwise falls back to the in-process memory hub
// (single-process lab runs and smoke tests).
func buildTransport(kind, self, mesh string, names *config.Names) (transport.Transport, error) {
	logger := slog.Default()

	if kind == "auto" {
		if ep, ok := names.EndpointOf(self); ok {
			if ep.IsChannel() {
				kind = "pubsub"
			} else {
				kind = "streammesh"
			}
		} else {
			kind = "memory"
		}
	}

	switch kind {
	case "memory":
		return memory.NewHub().Join(self), nil
	case "pubsub":
		ep, ok := names.EndpointOf(self)
		channel := mesh
		if ok && ep.IsChannel() {
			channel = ep.Channel
		}
		broker := os.Getenv("MESHROUTER_MQTT_BROKER")
		if broker == "" {
			return nil, fmt.Errorf("pubsub transport requires MESHROUTER_MQTT_BROKER")
		}
		t := pubsub.New(pubsub.Config{
			Broker: broker,
			MeshID: channel,
			SelfID: self,
			Logger: logger,
		})
		if err := t.Start(context.Background()); err != nil {
			return nil, err
		}
		return t, nil
	case "streammesh":
		t := streammesh.New(logger)
		ep, ok := names.EndpointOf(self)
		if ok && ep.IsTCP() {
			ln, err := streammesh.ListenTCP(fmt.Sprintf("%s:%d", ep.Host, ep.Port))
			if err != nil {
				return nil, err
			}
			go acceptStreamLinks(ln, t)
		}
		for id, ep := range names.Endpoints {
			if id == self || !ep.IsTCP() {
				continue
			}
			conn, err := streammesh.DialTCP(fmt.Sprintf("%s:%d", ep.Host, ep.Port), 5*time.Second)
			if err != nil {
				slog.Warn("could not dial neighbor, will rely on inbound link", "neighbor", id, "error", err)
				continue
			}
			fmt.Fprintf(conn, "hello %s\n", self)
			t.AddLink(id, conn)
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unknown transport %q (want auto, memory, streammesh, or pubsub)", kind)
	}
}

// acceptStreamLinks accepts inbound connections and attaches them under a
// neighbor id taken from the first line the peer writes ("hello <id>\n").
// This is a minimal identification handshake: the lab topology is small
// and operator-controlled, so anything more elaborate is out of scope.
func acceptStreamLinks(ln net.Listener, t *streammesh.Transport) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go identifyAndAttach(conn, t)
	}
}

func identifyAndAttach(conn net.Conn, t *streammesh.Transport) {
	var raw []byte
	b := make([]byte, 1)
	for len(raw) < 256 {
		if _, err := conn.Read(b); err != nil {
			conn.Close()
			return
		}
		if b[0] == '\n' {
			break
		}
		raw = append(raw, b[0])
	}
	line := strings.TrimSpace(string(raw))
	const prefix = "hello "
	if !strings.HasPrefix(line, prefix) {
		conn.Close()
		return
	}
	t.AddLink(strings.TrimPrefix(line, prefix), conn)
}

// teeHandler fans every record out to two handlers: the stderr text handler
// an operator watches live, and the LogBuffer the "logs" CLI command reads.
// Both see every component's lines, not just whichever one a caller happened
// to construct its logger from.
type teeHandler struct {
	a, b slog.Handler
}

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return t.a.Enabled(ctx, level) || t.b.Enabled(ctx, level)
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	if t.a.Enabled(ctx, r.Level) {
		if err := t.a.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	if t.b.Enabled(ctx, r.Level) {
		if err := t.b.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return teeHandler{a: t.a.WithAttrs(attrs), b: t.b.WithAttrs(attrs)}
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	return teeHandler{a: t.a.WithGroup(name), b: t.b.WithGroup(name)}
}

var _ slog.Handler = teeHandler{}

