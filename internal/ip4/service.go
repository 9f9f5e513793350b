package ip4

import "context"

// Logger is the minimal leveled-logging surface the core depends on; see
// internal/log for the production (logrus-backed) implementation.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// ServiceState tracks the core's own lifecycle.
type ServiceState int

const (
	ServiceStopped ServiceState = iota
	ServiceRunning
	ServiceDestroying
)

// Metrics is the small set of counters the core updates on the hot path.
// A nil *Metrics is valid; every method is a no-op in that case so tests
// and minimal embeddings don't need to supply one.
type Metrics struct {
	ActiveAssemblies   int64
	DatagramsDelivered int64
	FragmentsDropped   int64
}

func (m *Metrics) assemblyStarted() {
	if m != nil {
		m.ActiveAssemblies++
	}
}
func (m *Metrics) assemblyFinished() {
	if m != nil && m.ActiveAssemblies > 0 {
		m.ActiveAssemblies--
	}
}
func (m *Metrics) delivered() {
	if m != nil {
		m.DatagramsDelivered++
	}
}
func (m *Metrics) dropped() {
	if m != nil {
		m.FragmentsDropped++
	}
}

// Service owns every piece of mutable state confined to a single value:
// the assembly table, the bound interfaces (and their children), and the
// dispatch queue fan-out appends to during a receive pass.
type Service struct {
	State ServiceState

	Interfaces []*Interface
	table      *assembleTable
	dispatch   []func()

	Classifier        Classifier
	OptionValidator   OptionValidator
	FrameReceiver     FrameReceiver
	ICMPHandler       ProtocolHandler
	IGMPHandler       ProtocolHandler
	TxTimeoutIterator TxTimeoutIterator
	Logger            Logger
	Metrics           *Metrics
}

// NewService constructs a Service with its own assembly table, ready to
// have interfaces and children attached before Start.
func NewService(bucketCount int, logger Logger) *Service {
	return &Service{
		table:   InitAssembleTable(bucketCount),
		Logger:  logger,
		Metrics: &Metrics{},
	}
}

// SetAssembleLife overrides the tick lifetime assigned to newly created
// assembly entries (config's assemble_life_ticks).
func (s *Service) SetAssembleLife(life int) {
	s.table.SetEntryLife(life)
}

// AddInterface attaches iface to the service.
func (s *Service) AddInterface(iface *Interface) {
	s.Interfaces = append(s.Interfaces, iface)
}

// AddChild attaches child to iface and returns it.
func (s *Service) AddChild(iface *Interface, child *Child) *Child {
	child.Interface = iface
	iface.Children = append(iface.Children, child)
	return child
}

// Start arms the first receive and marks the service running.
func (s *Service) Start(ctx context.Context) error {
	s.State = ServiceRunning
	return s.armReceive(ctx)
}

// Stop marks the service as tearing down; the in-flight AcceptFrame call
// (if any) will see State == ServiceDestroying and not re-arm.
func (s *Service) Stop() {
	s.State = ServiceDestroying
	CleanAssembleTable(s.table)
}

func (s *Service) armReceive(ctx context.Context) error {
	if s.FrameReceiver == nil {
		return nil
	}
	return s.FrameReceiver.Receive(ctx, func(raw []byte, ioErr error, linkFlag uint32) {
		s.AcceptFrame(ctx, raw, ioErr, linkFlag)
	})
}

// drainDispatch runs every notification fan-out queued during this
// receive pass, then empties the queue. Mirrors NetLibDispatchDpc being
// drained once at the tail of the link-layer's receive handler.
func (s *Service) drainDispatch() {
	for _, fn := range s.dispatch {
		fn()
	}
	s.dispatch = s.dispatch[:0]
}
