// Command twopc-sim runs the simulated 2PC engine end to end: it parses
// flags, wires the in-process harness, installs a signal handler that
// flips the shared shutdown flag, and waits for every node to report
// status. The core protocol logic lives in the
// coordinator/participant/client/oplog packages; this command merely
// wires them together.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"twopcsim/configs"
	"twopcsim/sim"
)

func main() {
	numParticipants := flag.Int("participants", 3, "number of participants")
	numClients := flag.Int("clients", 2, "number of clients")
	numRequests := flag.Uint("requests", 5, "number of requests issued per client")
	logDir := flag.String("log-dir", "./twopc-logs", "directory for per-node decision logs")
	sendSuccessProb := flag.Float64("send-success-prob", 1.0, "participant -> coordinator vote delivery probability")
	operationSuccessProb := flag.Float64("operation-success-prob", 1.0, "participant local-operation success probability")
	knobsFile := flag.String("knobs-file", "", "optional .properties file of per-participant probabilities")
	verbose := flag.Bool("v", false, "enable debug logging")
	trace := flag.Bool("vv", false, "enable trace logging")
	flag.Parse()

	configs.Verbose = *verbose
	configs.Trace = *trace

	if err := os.MkdirAll(*logDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "twopc-sim: creating log dir: %v\n", err)
		os.Exit(1)
	}

	var knobs map[string]configs.ParticipantKnobs
	if *knobsFile != "" {
		var err error
		knobs, err = configs.LoadProbabilities(*knobsFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "twopc-sim: loading knobs file: %v\n", err)
			os.Exit(1)
		}
	}

	cfg := sim.Config{
		LogDir:      *logDir,
		NumRequests: uint32(*numRequests),
	}
	for i := 0; i < *numParticipants; i++ {
		id := fmt.Sprintf("participant%d", i+1)
		k, ok := knobs[id]
		if !ok {
			k = configs.ParticipantKnobs{SendSuccessProb: *sendSuccessProb, OperationSuccessProb: *operationSuccessProb}
		}
		cfg.Participants = append(cfg.Participants, sim.ParticipantSpec{ID: id, Knobs: k})
	}
	for i := 0; i < *numClients; i++ {
		cfg.ClientIDs = append(cfg.ClientIDs, fmt.Sprintf("client%d", i+1))
	}

	var running atomic.Bool
	running.Store(true)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		running.Store(false)
	}()

	if _, err := sim.Run(cfg, &running); err != nil {
		fmt.Fprintf(os.Stderr, "twopc-sim: %v\n", err)
		os.Exit(1)
	}
}
