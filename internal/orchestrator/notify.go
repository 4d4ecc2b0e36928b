package orchestrator

import (
	"strconv"

	"github.com/dwarvesf/secret-bridge/internal/model"
)

// Subscribe returns a channel of status changes and a function that ends the
// subscription. Delivery never blocks the orchestrator: a subscriber whose
// buffer is full misses the change.
//
// A change with an empty From is sent when an operation starts being
// tracked, by Begin or by Recover.
func (o *Orchestrator) Subscribe(buffer int) (<-chan model.StatusChange, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan model.StatusChange, buffer)

	o.subsMu.Lock()
	id := o.nextSub
	o.nextSub++
	if o.isClosed() {
		close(ch)
	} else {
		o.subs[id] = ch
	}
	o.subsMu.Unlock()

	cancel := func() {
		o.subsMu.Lock()
		defer o.subsMu.Unlock()
		if c, ok := o.subs[id]; ok {
			delete(o.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

func (o *Orchestrator) publish(change model.StatusChange) {
	o.subsMu.RLock()
	defer o.subsMu.RUnlock()

	for id, ch := range o.subs {
		select {
		case ch <- change:
		default:
			o.logger.Warn("[Orchestrator][publish] subscriber is behind, change dropped", map[string]string{
				"operation_id": change.OperationID,
				"to":           string(change.To),
				"subscriber":   strconv.Itoa(id),
			})
		}
	}
}
