// Package channels carries the agent's events on typed Go channels.
//
// Producers never block: an event that does not fit in its channel buffer is
// dropped and logged by the producer. Consumers select on the event channel
// and on Done:
//
//	for {
//	    select {
//	    case ev := <-events.HostDown:
//	        // handle ev
//	    case <-events.Done():
//	        return
//	    }
//	}
package channels
