package models

import (
	"context"
	"errors"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	usbserial "github.com/allbin/go-usbserial"
	"github.com/allbin/go-usbserial/internal/tui/components"
)

// maxRawData bounds the messages kept for re-rendering.
const maxRawData = 5000

type ConnectionStatusMsg struct {
	Connected bool
	Error     error
}

// SerialModel is the state shared by views bound to one serial port.
type SerialModel struct {
	port     *usbserial.SerialPort
	portName string

	// State
	connected bool
	paused    bool
	rawData   []components.DataReceivedMsg
	err       error
	ready     bool

	cancel context.CancelFunc
	ctx    context.Context
	mu     sync.RWMutex
}

func NewSerialModel(portName string) *SerialModel {
	ctx, cancel := context.WithCancel(context.Background())

	return &SerialModel{
		portName: portName,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (m *SerialModel) GetPort() *usbserial.SerialPort {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.port
}

func (m *SerialModel) SetPort(port *usbserial.SerialPort) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.port = port
}

func (m *SerialModel) GetPortName() string {
	return m.portName
}

func (m *SerialModel) IsConnected() bool {
	return m.connected
}

func (m *SerialModel) SetConnected(connected bool) {
	m.connected = connected
}

func (m *SerialModel) GetError() error {
	return m.err
}

func (m *SerialModel) SetError(err error) {
	m.err = err
}

func (m *SerialModel) IsReady() bool {
	return m.ready
}

func (m *SerialModel) SetReady(ready bool) {
	m.ready = ready
}

func (m *SerialModel) IsPaused() bool {
	return m.paused
}

func (m *SerialModel) TogglePaused() bool {
	m.paused = !m.paused
	return m.paused
}

func (m *SerialModel) GetRawData() []components.DataReceivedMsg {
	return m.rawData
}

func (m *SerialModel) AddRawData(msg components.DataReceivedMsg) {
	m.rawData = append(m.rawData, msg)
	if len(m.rawData) > maxRawData {
		m.rawData = m.rawData[len(m.rawData)-maxRawData:]
	}
}

func (m *SerialModel) ClearData() {
	m.rawData = nil
}

func (m *SerialModel) GetContext() context.Context {
	return m.ctx
}

// ReadLoop reads the port until the model is cancelled and hands every
// chunk to send. A read error other than cancellation is reported as a
// disconnect.
func (m *SerialModel) ReadLoop(send func(tea.Msg)) {
	port := m.GetPort()
	if port == nil {
		return
	}

	buffer := make([]byte, 4096)
	for {
		n, err := port.ReadContext(m.ctx, buffer)
		if err != nil {
			if m.ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			send(ConnectionStatusMsg{Connected: false, Error: err})
			return
		}
		data := make([]byte, n)
		copy(data, buffer[:n])
		send(components.DataReceivedMsg{Timestamp: time.Now(), Data: data})
	}
}

// PollSignals reads the modem lines every interval until the model is
// cancelled.
func (m *SerialModel) PollSignals(send func(tea.Msg), interval time.Duration) {
	port := m.GetPort()
	if port == nil {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
		}
		signals, err := usbserial.GetModemSignals(port.Port())
		send(components.SignalsMsg{Signals: signals, Err: err})
		if err != nil {
			return
		}
	}
}

func (m *SerialModel) Cancel() {
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *SerialModel) Cleanup() {
	// Cancel context to stop goroutines
	m.Cancel()

	m.mu.Lock()
	if m.port != nil {
		m.port.Close()
		m.port = nil
	}
	m.mu.Unlock()
}
