package metrics

// Sink is the metrics sink for the owner table, the classifiers and the
// migration controller. Implement this interface to write to other kinds of
// systems. The packet path calls the sink at most once per sub-batch, new flow
// or degraded lookup so implementations must be cheap and thread safe.
type Sink interface {
	PacketsClassified(core int, count int)
	PacketMalformed(dropped bool)
	FlowInserted()
	FlowRemoved()
	CapacityExceeded()
	SetGeneration(generation uint64)
	MigrationStarted(source int, records int)
	MigrationCompleted(source int)
	MigrationRejected(reason string)
	LogRequest(method string)
}

// The list of supported metrics
const (
	PrometheusSink = "prometheus"
	NoSink         = "blackhole"
)

// NewSinkFromString returns a named sink
func NewSinkFromString(name string, instance string) Sink {
	switch name {
	case PrometheusSink:
		return NewPrometheusSink(instance)
	default:
		return NewBlackHoleSink()
	}
}
