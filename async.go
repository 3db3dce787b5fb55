package espbus

import "context"

// WorkerNoTrigger is spawned without access to the event that started
// it: the common case of "kick off an operation and continue when it
// settles" (connect wifi, resolve mDNS, publish over MQTT). It returns
// the outcome as a payload plus that payload's own release action -
// release is nil when the payload is static or needs no cleanup - so
// the shadow event the continuation receives owns a well-formed,
// released-exactly-once payload rather than a bare value with nowhere
// to hang a destructor.
type WorkerNoTrigger func(ctx context.Context) (payload Payload, release func(), err error)

// Worker is spawned with a copy of the triggering event, for the less
// common case where the async operation needs data carried on the
// event that started it (e.g. the hostname carried from mDNS to MQTT).
type Worker func(ctx context.Context, trigger Event) (payload Payload, release func(), err error)

// resultPack is the Payload carried on the internal AsyncResult topic.
// It never escapes this package: FlowGraph's router consumes it and
// invokes the matching continuation before the event auto-releases.
type resultPack struct {
	triggerTopic  Topic
	triggerScalar int32
	payload       Payload
	release       func()
	err           error
	onOk          Flow
	onErr         Flow
}

func (*resultPack) isPayload() {}

// AsyncBlocking returns a Flow that, when run, spawns worker on its own
// goroutine and, once it returns, posts the outcome onto the bus's
// AsyncResult topic so FlowGraph's router invokes onOk or onErr on the
// dispatcher goroutine - never on the worker's own goroutine. onOk and
// onErr are themselves Flows, invoked with a shadow event equal to the
// triggering event's topic and scalar but with its payload replaced by
// the worker's output, so they compose from Publish/Seq/Branch/Filter
// like any other flow. The name reflects that worker itself is free to
// block (network I/O, a blocking socket read); the bus's dispatcher
// never waits for it.
func AsyncBlocking(worker WorkerNoTrigger, onOk, onErr Flow) Flow {
	return func(e *Event, bus *Bus) {
		bus.metrics.asyncSpawned.Add(1)
		bus.notifyAsync(BusEvent{Type: EventAsyncSpawn, Topic: e.Topic})
		topic, scalar := e.Topic, e.Scalar
		ctx := bus.baseCtx
		go func() {
			payload, release, err := worker(ctx)
			rp := &resultPack{
				triggerTopic:  topic,
				triggerScalar: scalar,
				payload:       payload,
				release:       release,
				err:           err,
				onOk:          onOk,
				onErr:         onErr,
			}
			bus.postToDispatcher(NewEvent(AsyncResult, 0, rp, nil))
		}()
	}
}

// AsyncBlockingWithEvent is AsyncBlocking's variant for workers that
// need the triggering event's data. It clones the triggering event
// rather than taking it, so the spawn-site event keeps its own payload
// for the remainder of the current fan-out and its normal end-of-
// delivery release, while the worker's copy shares the same underlying
// releaser - the payload is freed exactly once, whichever side releases
// it first. Once the worker returns, the clone's payload is released
// (its data has been superseded by the worker's output) and the shadow
// event handed to onOk/onErr carries the worker's payload, not the
// original trigger's.
func AsyncBlockingWithEvent(worker Worker, onOk, onErr Flow) Flow {
	return func(e *Event, bus *Bus) {
		bus.metrics.asyncSpawned.Add(1)
		bus.notifyAsync(BusEvent{Type: EventAsyncSpawn, Topic: e.Topic})
		owned := e.Clone()
		ctx := bus.baseCtx
		go func() {
			payload, release, err := worker(ctx, owned)
			owned.Release()
			rp := &resultPack{
				triggerTopic:  owned.Topic,
				triggerScalar: owned.Scalar,
				payload:       payload,
				release:       release,
				err:           err,
				onOk:          onOk,
				onErr:         onErr,
			}
			bus.postToDispatcher(NewEvent(AsyncResult, 0, rp, nil))
		}()
	}
}
