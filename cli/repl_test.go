package cli

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/lsrlab/meshrouter/config"
	"github.com/lsrlab/meshrouter/core/clock"
	"github.com/lsrlab/meshrouter/core/node"
	"github.com/lsrlab/meshrouter/core/routing"
	"github.com/lsrlab/meshrouter/transport/memory"
)

func newTestREPL(t *testing.T) (*REPL, func()) {
	t.Helper()
	hub := memory.NewHub()
	clk := clock.New()
	strat := routing.NewLSR(routing.LSRConfig{SelfID: "A", Clock: clk})
	tr := hub.Join("A")
	n := node.New(node.Config{SelfID: "A", Strategy: strat, Transport: tr, TickInterval: 20 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	go n.Run(ctx)

	topo, err := config.ParseTopology([]byte(`{"type":"topo","config":{"A":["B"],"B":["A"]}}`))
	if err != nil {
		t.Fatalf("ParseTopology: %v", err)
	}

	var buf bytes.Buffer
	repl := NewREPL(n, topo, NewLogBuffer(10), &buf)
	return repl, func() { cancel(); n.Stop() }
}

func TestDispatch_UnknownCommand(t *testing.T) {
	repl, stop := newTestREPL(t)
	defer stop()

	reply, quit := repl.Dispatch(context.Background(), "frobnicate")
	if quit {
		t.Error("unknown command should not quit")
	}
	if !strings.Contains(reply, "unknown command") {
		t.Errorf("got reply %q, want it to mention unknown command", reply)
	}
}

func TestDispatch_Quit(t *testing.T) {
	repl, stop := newTestREPL(t)
	defer stop()

	reply, quit := repl.Dispatch(context.Background(), "quit")
	if !quit {
		t.Error("expected quit to request exit")
	}
	if reply != "bye" {
		t.Errorf("got reply %q, want bye", reply)
	}
}

func TestDispatch_SendRequiresTwoArgs(t *testing.T) {
	repl, stop := newTestREPL(t)
	defer stop()

	reply, _ := repl.Dispatch(context.Background(), "send B")
	if !strings.Contains(reply, "usage") {
		t.Errorf("got reply %q, want a usage message", reply)
	}
}

func TestDispatch_SendReportsDestination(t *testing.T) {
	repl, stop := newTestREPL(t)
	defer stop()

	reply, _ := repl.Dispatch(context.Background(), "send B hello world")
	if !strings.Contains(reply, "B") || !strings.Contains(reply, "hello world") {
		t.Errorf("got reply %q, want it to echo destination and message", reply)
	}
}

func TestDispatch_NeighborsEmpty(t *testing.T) {
	repl, stop := newTestREPL(t)
	defer stop()

	reply, _ := repl.Dispatch(context.Background(), "neighbors")
	if reply != "(no neighbors)" {
		t.Errorf("got %q, want (no neighbors)", reply)
	}
}

func TestDispatch_RoutesEmptyBeforeConvergence(t *testing.T) {
	repl, stop := newTestREPL(t)
	defer stop()

	reply, _ := repl.Dispatch(context.Background(), "routes")
	if reply != "(no routes)" {
		t.Errorf("got %q, want (no routes) before any neighbor is known", reply)
	}
}

func TestDispatch_Topology(t *testing.T) {
	repl, stop := newTestREPL(t)
	defer stop()

	reply, _ := repl.Dispatch(context.Background(), "topology")
	if !strings.Contains(reply, "A: B") {
		t.Errorf("got %q, want it to list A's neighbor B", reply)
	}
}

func TestDispatch_LogsEmptyBuffer(t *testing.T) {
	repl, stop := newTestREPL(t)
	defer stop()

	reply, _ := repl.Dispatch(context.Background(), "logs")
	if reply != "(no logs yet)" {
		t.Errorf("got %q, want (no logs yet)", reply)
	}
}

func TestRun_ProcessesLinesUntilQuit(t *testing.T) {
	repl, stop := newTestREPL(t)
	defer stop()

	input := strings.NewReader("neighbors\nquit\nsend B should-not-run\n")
	var out bytes.Buffer
	repl.Out = &out
	repl.Run(context.Background(), input)

	got := out.String()
	if !strings.Contains(got, "(no neighbors)") {
		t.Errorf("expected neighbors output, got %q", got)
	}
	if !strings.Contains(got, "bye") {
		t.Errorf("expected bye output, got %q", got)
	}
	if strings.Contains(got, "should-not-run") {
		t.Error("expected Run to stop processing after quit")
	}
}

func TestLogBuffer_RecordsAndEvictsOldest(t *testing.T) {
	lb := NewLogBuffer(2)
	logger := slog.New(lb)
	logger.Info("first")
	logger.Info("second")
	logger.Info("third")

	lines := lb.Lines()
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if !strings.Contains(lines[0], "second") || !strings.Contains(lines[1], "third") {
		t.Errorf("got lines %v, want oldest evicted and newest two retained", lines)
	}
}
