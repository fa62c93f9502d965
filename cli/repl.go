package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/lsrlab/meshrouter/config"
	"github.com/lsrlab/meshrouter/core/node"
)

// REPL is the interactive command surface of spec §6: a thin dispatcher
// over algorithm reads and orchestrator sends. It never touches routing
// or transport state directly — routing reads and sends go through Node's
// exported read/send methods, while "topology" and "logs" read the Topo
// and Logs fields.
type REPL struct {
	Node *node.Node
	Topo *config.Topology
	Logs *LogBuffer

	Out io.Writer
}

// NewREPL builds a REPL bound to a running node.
func NewREPL(n *node.Node, topo *config.Topology, logs *LogBuffer, out io.Writer) *REPL {
	return &REPL{Node: n, Topo: topo, Logs: logs, Out: out}
}

// Run reads commands from in line by line until EOF, ctx cancellation, or
// a "quit" command, printing one reply per command to Out.
func (r *REPL) Run(ctx context.Context, in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Text()
		reply, quit := r.Dispatch(ctx, line)
		if reply != "" {
			fmt.Fprintln(r.Out, reply)
		}
		if quit {
			return
		}
	}
}

// Dispatch executes a single command line and returns its reply text and
// whether the REPL should exit afterward.
func (r *REPL) Dispatch(ctx context.Context, line string) (reply string, quit bool) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return "", false
	}

	switch parts[0] {
	case "send":
		return r.cmdSend(ctx, parts[1:]), false
	case "echo":
		return r.cmdEcho(ctx, parts[1:]), false
	case "neighbors":
		return r.cmdNeighbors(), false
	case "routes":
		return r.cmdRoutes(), false
	case "logs":
		return r.cmdLogs(), false
	case "topology":
		return r.cmdTopology(), false
	case "quit":
		return "bye", true
	default:
		return "unknown command: " + parts[0], false
	}
}

func (r *REPL) cmdSend(ctx context.Context, args []string) string {
	if len(args) < 2 {
		return "usage: send <dst> <msg>"
	}
	dst := args[0]
	msg := strings.Join(args[1:], " ")
	r.Node.Send(ctx, dst, msg)
	return fmt.Sprintf("sent to %s: %s", dst, msg)
}

func (r *REPL) cmdEcho(ctx context.Context, args []string) string {
	if len(args) < 1 {
		return "usage: echo <dst>"
	}
	r.Node.Echo(ctx, args[0])
	return fmt.Sprintf("echo sent to %s", args[0])
}

func (r *REPL) cmdNeighbors() string {
	neighbors := r.Node.Neighbors()
	if len(neighbors) == 0 {
		return "(no neighbors)"
	}
	ids := make([]string, 0, len(neighbors))
	for id := range neighbors {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var sb strings.Builder
	for _, id := range ids {
		n := neighbors[id]
		status := "down"
		if n.Alive {
			status = "up"
		}
		fmt.Fprintf(&sb, "%s cost=%d %s last_seen=%s\n", id, n.Cost, status, n.LastSeen.UTC().Format("15:04:05"))
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func (r *REPL) cmdRoutes() string {
	table := r.Node.RoutingTable()
	if len(table) == 0 {
		return "(no routes)"
	}
	dests := make([]string, 0, len(table))
	for dst := range table {
		dests = append(dests, dst)
	}
	sort.Strings(dests)

	var sb strings.Builder
	for _, dst := range dests {
		fmt.Fprintf(&sb, "%s via %s\n", dst, table[dst])
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func (r *REPL) cmdLogs() string {
	if r.Logs == nil {
		return "(logging not buffered)"
	}
	lines := r.Logs.Lines()
	if len(lines) == 0 {
		return "(no logs yet)"
	}
	return strings.Join(lines, "\n")
}

func (r *REPL) cmdTopology() string {
	if r.Topo == nil {
		return "(no topology configured)"
	}
	ids := make([]string, 0, len(r.Topo.Neighbors))
	for id := range r.Topo.Neighbors {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var sb strings.Builder
	for _, id := range ids {
		fmt.Fprintf(&sb, "%s: %s\n", id, strings.Join(r.Topo.NeighborsOf(id), ", "))
	}
	return strings.TrimSuffix(sb.String(), "\n")
}
