package espbus

// Flow is a composable reaction to a delivered event, given the Bus so
// it can publish further events or spawn async work. e is borrowed for
// the call under the same contract as Handler: don't mutate Topic or
// Scalar, and call SuspendAutoRelease before returning if the payload
// must outlive the call.
type Flow func(e *Event, bus *Bus)

// Publish returns a Flow that publishes a fixed event whenever it
// runs, independent of the triggering event's own payload.
func Publish(topic Topic, scalar int32, payload Payload, release func()) Flow {
	return func(e *Event, bus *Bus) {
		_ = bus.Publish(NewEvent(topic, scalar, payload, release))
	}
}

// Seq runs flows in order against the same triggering event.
func Seq(flows ...Flow) Flow {
	return func(e *Event, bus *Bus) {
		for _, f := range flows {
			if f != nil {
				f(e, bus)
			}
		}
	}
}

// Tee is Seq under the "fan one event out to independent reactions"
// reading; the two names compose identically.
func Tee(flows ...Flow) Flow {
	return Seq(flows...)
}

// Filter runs next only when predicate holds for the triggering event.
func Filter(predicate func(e *Event) bool, next Flow) Flow {
	return func(e *Event, bus *Bus) {
		if predicate(e) {
			next(e, bus)
		}
	}
}

// Branch runs onTrue when predicate holds for the triggering event,
// onFalse otherwise. Either branch may be nil.
func Branch(predicate func(e *Event) bool, onTrue, onFalse Flow) Flow {
	return func(e *Event, bus *Bus) {
		if predicate(e) {
			if onTrue != nil {
				onTrue(e, bus)
			}
			return
		}
		if onFalse != nil {
			onFalse(e, bus)
		}
	}
}

// Tap runs fn for its side effect (logging, metrics, a test probe) and
// never publishes; it exists as a Flow purely so it composes with Seq,
// Filter and Branch.
func Tap(fn func(e *Event)) Flow {
	return func(e *Event, bus *Bus) {
		fn(e)
	}
}
