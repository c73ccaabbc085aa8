package usbserial

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Provider names the ports of every recognized device on a transport.
// Devices are scanned on the first call to PortNames and the result is
// cached for the lifetime of the provider. An empty result is cached too,
// so devices attached after the first scan need a new provider. Only a
// failed enumeration is retried.
type Provider struct {
	transport Transport
	prober    *Prober
	log       *zap.SugaredLogger

	mu      sync.Mutex
	scanned bool
	drivers []Driver
	names   []string
	ports   map[string]*SerialPort
}

// NewProvider returns a provider for t. A nil prober uses
// DefaultProber, a nil logger discards output.
func NewProvider(t Transport, prober *Prober, log *zap.SugaredLogger) *Provider {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if prober == nil {
		prober = DefaultProber(log)
	}
	return &Provider{
		transport: t,
		prober:    prober,
		log:       log,
		ports:     make(map[string]*SerialPort),
	}
}

// PortName formats the name of port index on device id.
func PortName(deviceID, portIndex int) string {
	return fmt.Sprintf("%d/%d", deviceID, portIndex)
}

// PortNames returns the sorted names of all ports. The first successful
// call scans the transport, later calls return the cached names even when
// that scan found nothing.
func (p *Provider) PortNames() ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.scanLocked(); err != nil {
		return nil, err
	}
	return slices.Clone(p.names), nil
}

func (p *Provider) scanLocked() error {
	if p.scanned {
		return nil
	}

	drivers, err := p.prober.Scan(p.transport)
	if err != nil {
		return err
	}
	for _, d := range drivers {
		for _, port := range d.Ports() {
			name := PortName(d.Device().ID, port.PortNumber())
			if _, ok := p.ports[name]; ok {
				p.log.Warnw("duplicate port name", "name", name)
				continue
			}
			p.ports[name] = newSerialPort(name, port, p.log)
			p.names = append(p.names, name)
		}
	}
	slices.Sort(p.names)
	p.drivers = drivers
	p.scanned = true
	p.log.Debugw("scanned devices", "drivers", len(drivers), "ports", len(p.names))
	return nil
}

// SerialPort returns the port registered under name by PortNames.
func (p *Provider) SerialPort(name string) (*SerialPort, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sp, ok := p.ports[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPortNotFound, name)
	}
	return sp, nil
}

// Close closes every driver found by the scan.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	for _, d := range p.drivers {
		err = multierr.Append(err, d.Close())
	}
	return err
}

// SerialPort is a named port bound to a configuration.
type SerialPort struct {
	name string
	port Port
	log  *zap.SugaredLogger

	mu     sync.Mutex
	config Config
}

func newSerialPort(name string, port Port, log *zap.SugaredLogger) *SerialPort {
	return &SerialPort{
		name:   name,
		port:   port,
		log:    log.With("port", name),
		config: DefaultConfig(),
	}
}

// Name returns the "{deviceId}/{portIndex}" name of the port.
func (s *SerialPort) Name() string {
	return s.name
}

// Port returns the underlying driver port.
func (s *SerialPort) Port() Port {
	return s.port
}

// Config returns the configuration of the last Open.
func (s *SerialPort) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

func (s *SerialPort) IsOpen() bool {
	return s.port.IsOpen()
}

// Open opens the port with DefaultConfig modified by opts. Opening an
// open port does nothing.
func (s *SerialPort) Open(opts ...Option) error {
	cfg, err := NewConfig(opts...)
	if err != nil {
		return err
	}
	return s.OpenConfig(cfg)
}

// OpenConfig opens the port with cfg.
func (s *SerialPort) OpenConfig(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port.IsOpen() {
		s.log.Debug("already open")
		return nil
	}
	if err := s.port.Open(cfg); err != nil {
		return fmt.Errorf("failed to open %s: %w", s.name, err)
	}
	s.config = cfg
	s.log.Debugw("opened", "baud", cfg.BaudRate, "data", cfg.DataBits, "stop", cfg.StopBits.String(), "parity", cfg.Parity.String())
	return nil
}

// Close closes the port. Closing a closed port does nothing.
func (s *SerialPort) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.port.IsOpen() {
		return nil
	}
	return s.port.Close()
}

// Read reads with the configured read timeout. It returns 0 bytes and no
// error when nothing arrived in time.
func (s *SerialPort) Read(buf []byte) (int, error) {
	if !s.port.IsOpen() {
		return 0, ErrPortClosed
	}
	return s.port.Read(buf, s.Config().ReadTimeout)
}

// Write writes buf with the configured write timeout.
func (s *SerialPort) Write(buf []byte) (int, error) {
	if !s.port.IsOpen() {
		return 0, ErrPortClosed
	}
	return s.port.Write(buf, s.Config().WriteTimeout)
}

// ReadContext reads until at least one byte arrives, an error occurs or
// ctx is done.
func (s *SerialPort) ReadContext(ctx context.Context, buf []byte) (int, error) {
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n, err := s.Read(buf)
		if err != nil || n > 0 {
			return n, err
		}
	}
}
