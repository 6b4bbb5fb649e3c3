// Package sim wires one coordinator, a set of participants and a set of
// clients together over in-process channel endpoints and runs them
// concurrently: one goroutine per node plays the role of one OS process
// per node, each running its own polling loop.
package sim

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"twopcsim/client"
	"twopcsim/configs"
	"twopcsim/coordinator"
	"twopcsim/oplog"
	"twopcsim/participant"
	"twopcsim/transport"
)

// ParticipantSpec describes one participant to spawn.
type ParticipantSpec struct {
	ID    string
	Knobs configs.ParticipantKnobs
}

// Config describes a full run of the simulation.
type Config struct {
	LogDir       string
	Participants []ParticipantSpec
	ClientIDs    []string
	NumRequests  uint32
	// ChannelBuffer sizes each endpoint's underlying channel; 0 uses a
	// sensible default.
	ChannelBuffer int
}

// Run wires and starts every node, waits for all client goroutines to
// finish issuing their requests, then flips running false (if the caller
// hasn't already) so the coordinator and participants unwind, and waits
// for every node to finish. It returns the coordinator so callers/tests can
// inspect its tallies after Run returns.
func Run(cfg Config, running *atomic.Bool) (*coordinator.Manager, error) {
	bufSize := cfg.ChannelBuffer
	if bufSize <= 0 {
		bufSize = 16
	}

	coordLog, err := oplog.Open(filepath.Join(cfg.LogDir, "coordinator"))
	if err != nil {
		return nil, fmt.Errorf("sim: opening coordinator log: %w", err)
	}

	mgr := coordinator.New(running, coordLog)

	var wg sync.WaitGroup

	for _, spec := range cfg.Participants {
		pLog, err := oplog.Open(filepath.Join(cfg.LogDir, spec.ID))
		if err != nil {
			return nil, fmt.Errorf("sim: opening log for participant %s: %w", spec.ID, err)
		}
		coordSide, partSide := transport.NewPair(bufSize)
		if err := mgr.ParticipantJoin(spec.ID, coordSide); err != nil {
			return nil, fmt.Errorf("sim: joining participant %s: %w", spec.ID, err)
		}

		p := participant.New(spec.ID, running, partSide, pLog, spec.Knobs.SendSuccessProb, spec.Knobs.OperationSuccessProb)
		wg.Add(1)
		go func(p *participant.Participant, log *oplog.OpLog) {
			defer wg.Done()
			defer log.Close()
			p.Protocol()
		}(p, pLog)
	}

	clients := make([]*client.Client, 0, len(cfg.ClientIDs))
	for _, id := range cfg.ClientIDs {
		coordSide, clientSide := transport.NewPair(bufSize)
		if err := mgr.ClientJoin(id, coordSide); err != nil {
			return nil, fmt.Errorf("sim: joining client %s: %w", id, err)
		}
		clients = append(clients, client.New(id, running, clientSide))
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer coordLog.Close()
		mgr.Protocol()
	}()

	// Phase 1: every client issues (up to) its full quota of requests.
	// This harness is the driver that decides when the run is over -- the
	// same way a CLI would wait out a fixed duration or a signal handler
	// would fire -- before flipping the shared shutdown flag.
	var requestsWg sync.WaitGroup
	for _, c := range clients {
		requestsWg.Add(1)
		go func(c *client.Client) {
			defer requestsWg.Done()
			c.RunRequests(cfg.NumRequests)
		}(c)
	}
	requestsWg.Wait()

	// All requested transactions have been issued (or shutdown cut them
	// short); let the coordinator and participants drain and exit.
	running.Store(false)

	// Phase 2: every client observes CoordinatorExit (or the now-false
	// running flag) and reports its status.
	var exitWg sync.WaitGroup
	for _, c := range clients {
		exitWg.Add(1)
		go func(c *client.Client) {
			defer exitWg.Done()
			c.WaitForExitSignal()
			c.ReportStatus()
		}(c)
	}
	exitWg.Wait()

	wg.Wait()

	return mgr, nil
}
