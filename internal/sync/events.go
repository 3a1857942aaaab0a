package sync

// Subscribe returns a channel of status and collection events. Delivery never
// blocks the orchestrator: when the buffer is full the event is dropped for
// that subscriber. cancel unsubscribes and closes the channel.
func (o *Orchestrator) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, max(buffer, 1))

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		close(ch)
		return ch, func() {}
	}
	id := o.nextSub
	o.nextSub++
	o.subs[id] = ch

	return ch, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if c, ok := o.subs[id]; ok {
			delete(o.subs, id)
			close(c)
		}
	}
}

func (o *Orchestrator) emitLocked(ev Event) {
	for _, ch := range o.subs {
		select {
		case ch <- ev:
		default:
			o.logger.Debug("sync: subscriber full, dropping event", "kind", ev.Kind)
		}
	}
}

func (o *Orchestrator) setStateLocked(s State, reason Reason) {
	o.state = s
	o.emitLocked(Event{Kind: StatusChanged, Status: o.snapshotLocked(), Reason: reason})
}
