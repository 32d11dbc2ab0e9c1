package main

import (
	"context"
	"fmt"
	"log"

	"github.com/itohio/coreloop/pkg/archive"
	"github.com/itohio/coreloop/pkg/monitor"
)

// replaySession feeds the packets of an archived session into out. An empty session
// selects the newest one.
func replaySession(ctx context.Context, path, session string, out chan<- monitor.Packet) error {
	a, err := archive.Open(path)
	if err != nil {
		return err
	}
	defer a.Close()

	if session == "" {
		sessions, err := a.Sessions()
		if err != nil {
			return err
		}
		// The newest session is the one just opened for reading; skip it.
		for _, s := range sessions {
			if s.SessionID != a.SessionID() && s.Packets > 0 {
				session = s.SessionID
				break
			}
		}
		if session == "" {
			return fmt.Errorf("no archived sessions in %s", path)
		}
	}

	packets, err := a.Packets(session)
	if err != nil {
		return err
	}
	log.Printf("Replaying %d packets of session %s", len(packets), session)

	for _, p := range packets {
		select {
		case out <- monitor.Packet{AppID: p.AppID, Payload: p.Payload}:
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}
