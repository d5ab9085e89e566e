// SPDX-License-Identifier: MIT
package udp

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"tuner/internal/analysis"
	applog "tuner/internal/log"
)

const (
	// HeaderSize is the fixed packet prefix: sequence, timestamp, count.
	HeaderSize = 4 + 8 + 2
	// MaxMagnitudes is the largest spectrum that fits one IPv4 datagram.
	MaxMagnitudes = (65507 - HeaderSize) / 4

	defaultInterval = 33 * time.Millisecond
)

// ErrShortPacket is returned by DecodePacket for truncated input.
var ErrShortPacket = errors.New("udp: short packet")

// PacketSender is the part of UDPSender the publisher needs.
type PacketSender interface {
	Send(data []byte) error
}

// UDPPublisher periodically copies the latest magnitude spectrum from an
// analysis.SpectrumProvider, packs it and sends it. It runs on its own
// ticker, decoupled from the analysis rate.
type UDPPublisher struct {
	sender   PacketSender
	spectrum analysis.SpectrumProvider
	interval time.Duration

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex // protects ticker and doneChan across Start/Stop

	sequenceNum uint32

	// Reused on every tick.
	magBuffer []float64
	packet    []byte
}

// NewUDPPublisher creates a publisher. An interval <= 0 falls back to
// about 30 packets per second.
func NewUDPPublisher(interval time.Duration, sender PacketSender, spectrum analysis.SpectrumProvider) (*UDPPublisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("UDPPublisher: UDP sender cannot be nil")
	}
	if spectrum == nil {
		return nil, fmt.Errorf("UDPPublisher: spectrum provider cannot be nil")
	}

	bins := spectrum.SpectrumSize()
	if bins <= 0 || bins > MaxMagnitudes {
		return nil, fmt.Errorf("UDPPublisher: spectrum of %d bins does not fit a datagram (max %d)", bins, MaxMagnitudes)
	}

	if interval <= 0 {
		interval = defaultInterval
		applog.Warnf("UDPPublisher: Invalid interval provided, defaulting to %s", interval)
	}

	applog.Infof("UDPPublisher: Initializing (Interval: %s, Bins: %d)", interval, bins)

	return &UDPPublisher{
		sender:    sender,
		spectrum:  spectrum,
		interval:  interval,
		magBuffer: make([]float64, bins),
		packet:    make([]byte, 0, HeaderSize+4*bins),
	}, nil
}

// Start launches the publishing goroutine. Calling Start on a running
// publisher is a no-op.
func (p *UDPPublisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		applog.Warnf("UDPPublisher: Start called but already running.")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		applog.Debugf("UDPPublisher: Publisher goroutine started")
		for {
			select {
			case <-ticker.C:
				p.buildAndSendPacket()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the goroutine and waits for it. Safe to call repeatedly.
func (p *UDPPublisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	applog.Infof("UDPPublisher: Stopped after %d packets", p.Sequence())
	return nil
}

// Run publishes until ctx is done.
func (p *UDPPublisher) Run(ctx context.Context) error {
	p.Start()
	<-ctx.Done()
	return p.Stop()
}

// Sequence is the number of the last packet built.
func (p *UDPPublisher) Sequence() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sequenceNum
}

/*
Packet layout, big endian:

|<---- 4 Bytes ---->|<------ 8 Bytes ------>|<-- 2 Bytes -->|<----- N * 4 Bytes ----->|
+-------------------+-----------------------+---------------+-------------------------+
|  Sequence Number  |       Timestamp       |   Magnitude   |       Magnitudes        |
|      (uint32)     |   (int64, unix ns)    |   Count (N)   |      (N * float32)      |
+-------------------+-----------------------+---------------+-------------------------+
*/

func (p *UDPPublisher) buildAndSendPacket() {
	if err := p.spectrum.MagnitudesInto(p.magBuffer); err != nil {
		applog.Errorf("UDPPublisher: Error getting magnitudes: %v", err)
		return
	}

	p.mu.Lock()
	p.sequenceNum++
	seq := p.sequenceNum
	p.mu.Unlock()

	p.packet = AppendPacket(p.packet[:0], seq, time.Now().UnixNano(), p.magBuffer)

	if err := p.sender.Send(p.packet); err != nil {
		applog.Debugf("UDPPublisher: Packet %d not sent: %v", seq, err)
		return
	}
	applog.Debugf("UDPPublisher: Sent packet %d (%d bytes)", seq, len(p.packet))
}

// AppendPacket encodes one packet onto dst. Magnitudes are narrowed to
// float32.
func AppendPacket(dst []byte, seq uint32, timestamp int64, mags []float64) []byte {
	dst = binary.BigEndian.AppendUint32(dst, seq)
	dst = binary.BigEndian.AppendUint64(dst, uint64(timestamp))
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(mags)))
	for _, m := range mags {
		dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(float32(m)))
	}
	return dst
}

// Packet is a decoded spectrum packet.
type Packet struct {
	Sequence   uint32
	Timestamp  int64
	Magnitudes []float32
}

// DecodePacket parses a packet built by AppendPacket.
func DecodePacket(b []byte) (Packet, error) {
	if len(b) < HeaderSize {
		return Packet{}, ErrShortPacket
	}
	p := Packet{
		Sequence:  binary.BigEndian.Uint32(b[0:4]),
		Timestamp: int64(binary.BigEndian.Uint64(b[4:12])),
	}
	n := int(binary.BigEndian.Uint16(b[12:14]))
	body := b[HeaderSize:]
	if len(body) < 4*n {
		return Packet{}, fmt.Errorf("%w: %d magnitudes declared, %d bytes present", ErrShortPacket, n, len(body))
	}
	p.Magnitudes = make([]float32, n)
	for i := range p.Magnitudes {
		p.Magnitudes[i] = math.Float32frombits(binary.BigEndian.Uint32(body[4*i:]))
	}
	return p, nil
}

// Close stops the publisher.
func (p *UDPPublisher) Close() error {
	return p.Stop()
}

var _ interface{ Close() error } = (*UDPPublisher)(nil)
