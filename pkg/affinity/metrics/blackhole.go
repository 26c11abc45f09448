package metrics

// NewBlackHoleSink creates a metrics sink that discards all metrics
func NewBlackHoleSink() Sink {
	return &blackHoleSink{}
}

type blackHoleSink struct {
}

func (b *blackHoleSink) PacketsClassified(core int, count int) {
	// do nothing
}

func (b *blackHoleSink) PacketMalformed(dropped bool) {
	// do nothing
}

func (b *blackHoleSink) FlowInserted() {
	// do nothing
}

func (b *blackHoleSink) FlowRemoved() {
	// do nothing
}

func (b *blackHoleSink) CapacityExceeded() {
	// do nothing
}

func (b *blackHoleSink) SetGeneration(generation uint64) {
	// do nothing
}

func (b *blackHoleSink) MigrationStarted(source int, records int) {
	// do nothing
}

func (b *blackHoleSink) MigrationCompleted(source int) {
	// do nothing
}

func (b *blackHoleSink) MigrationRejected(reason string) {
	// do nothing
}

func (b *blackHoleSink) LogRequest(method string) {
	// do nothing
}
