// SPDX-License-Identifier: MIT
package udp

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"
)

// fakeSpectrum serves a fixed spectrum.
type fakeSpectrum struct {
	mu   sync.Mutex
	mags []float64
	err  error
}

func (f *fakeSpectrum) MagnitudesInto(dst []float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	copy(dst, f.mags)
	return nil
}

func (f *fakeSpectrum) SpectrumSize() int { return len(f.mags) }

func (f *fakeSpectrum) BinFrequency(k int) float64 { return float64(k) }

func (f *fakeSpectrum) SampleRate() float64 { return 44100 }

// captureSender keeps a copy of every packet.
type captureSender struct {
	mu      sync.Mutex
	packets [][]byte
}

func (c *captureSender) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.packets = append(c.packets, append([]byte(nil), data...))
	return nil
}

func (c *captureSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.packets)
}

func TestPacketRoundTrip(t *testing.T) {
	mags := []float64{0, 0.5, 1.25, 1024}
	b := AppendPacket(nil, 42, 1_700_000_000_000_000_000, mags)

	if len(b) != HeaderSize+4*len(mags) {
		t.Fatalf("packet length = %d, want %d", len(b), HeaderSize+4*len(mags))
	}
	// Sequence number is the first big endian word.
	if b[0] != 0 || b[1] != 0 || b[2] != 0 || b[3] != 42 {
		t.Errorf("sequence bytes = %v", b[:4])
	}

	p, err := DecodePacket(b)
	if err != nil {
		t.Fatalf("DecodePacket: %v", err)
	}
	if p.Sequence != 42 || p.Timestamp != 1_700_000_000_000_000_000 {
		t.Errorf("header = %+v", p)
	}
	for i, m := range mags {
		if p.Magnitudes[i] != float32(m) {
			t.Errorf("mag[%d] = %v, want %v", i, p.Magnitudes[i], m)
		}
	}
}

func TestDecodePacketShort(t *testing.T) {
	if _, err := DecodePacket(make([]byte, HeaderSize-1)); !errors.Is(err, ErrShortPacket) {
		t.Errorf("short header err = %v", err)
	}
	b := AppendPacket(nil, 1, 1, []float64{1, 2, 3})
	if _, err := DecodePacket(b[:len(b)-1]); !errors.Is(err, ErrShortPacket) {
		t.Errorf("short body err = %v", err)
	}
}

func TestNewUDPPublisherValidation(t *testing.T) {
	provider := &fakeSpectrum{mags: make([]float64, 8)}
	sender := &captureSender{}

	if _, err := NewUDPPublisher(time.Millisecond, nil, provider); err == nil {
		t.Error("expected error for nil sender")
	}
	if _, err := NewUDPPublisher(time.Millisecond, sender, nil); err == nil {
		t.Error("expected error for nil provider")
	}
	if _, err := NewUDPPublisher(time.Millisecond, sender, &fakeSpectrum{mags: make([]float64, MaxMagnitudes+1)}); err == nil {
		t.Error("expected error for oversized spectrum")
	}

	p, err := NewUDPPublisher(0, sender, provider)
	if err != nil {
		t.Fatalf("NewUDPPublisher: %v", err)
	}
	if p.interval != defaultInterval {
		t.Errorf("interval = %v, want %v", p.interval, defaultInterval)
	}
}

func TestPublisherStartStop(t *testing.T) {
	provider := &fakeSpectrum{mags: []float64{1, 2, 3, 4}}
	sender := &captureSender{}
	p, err := NewUDPPublisher(time.Millisecond, sender, provider)
	if err != nil {
		t.Fatalf("NewUDPPublisher: %v", err)
	}

	p.Start()
	p.Start() // no-op
	deadline := time.Now().Add(2 * time.Second)
	for sender.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}

	n := sender.count()
	if n < 3 {
		t.Fatalf("sent %d packets, want at least 3", n)
	}
	if uint32(n) != p.Sequence() {
		t.Errorf("Sequence = %d, packets = %d", p.Sequence(), n)
	}

	for i, raw := range sender.packets {
		pkt, err := DecodePacket(raw)
		if err != nil {
			t.Fatalf("packet %d: %v", i, err)
		}
		if pkt.Sequence != uint32(i+1) {
			t.Errorf("packet %d sequence = %d", i, pkt.Sequence)
		}
		if len(pkt.Magnitudes) != 4 || pkt.Magnitudes[3] != 4 {
			t.Errorf("packet %d magnitudes = %v", i, pkt.Magnitudes)
		}
	}

	time.Sleep(5 * time.Millisecond)
	if sender.count() != n {
		t.Error("packets sent after Stop")
	}
}

func TestPublisherSkipsOnProviderError(t *testing.T) {
	provider := &fakeSpectrum{mags: []float64{1}, err: errors.New("not ready")}
	sender := &captureSender{}
	p, err := NewUDPPublisher(time.Millisecond, sender, provider)
	if err != nil {
		t.Fatalf("NewUDPPublisher: %v", err)
	}
	p.buildAndSendPacket()
	if sender.count() != 0 || p.Sequence() != 0 {
		t.Errorf("sent %d packets, sequence %d; want none", sender.count(), p.Sequence())
	}
}

func TestPublisherOverUDP(t *testing.T) {
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Skipf("cannot listen on loopback: %v", err)
	}
	defer listener.Close()

	sender, err := NewUDPSender(listener.LocalAddr().String())
	if err != nil {
		t.Fatalf("NewUDPSender: %v", err)
	}
	defer sender.Close()

	mags := make([]float64, 1024)
	for i := range mags {
		mags[i] = float64(i) / 4
	}
	p, err := NewUDPPublisher(5*time.Millisecond, sender, &fakeSpectrum{mags: mags})
	if err != nil {
		t.Fatalf("NewUDPPublisher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	buf := make([]byte, 65535)
	listener.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := listener.ReadFromUDP(buf)
	cancel()
	if err != nil {
		t.Fatalf("ReadFromUDP: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	pkt, err := DecodePacket(buf[:n])
	if err != nil {
		t.Fatalf("DecodePacket: %v", err)
	}
	if len(pkt.Magnitudes) != len(mags) {
		t.Fatalf("got %d magnitudes, want %d", len(pkt.Magnitudes), len(mags))
	}
	if pkt.Magnitudes[100] != 25 {
		t.Errorf("mag[100] = %v, want 25", pkt.Magnitudes[100])
	}
	if pkt.Sequence == 0 {
		t.Error("sequence should start at 1")
	}
}

func TestSenderClosed(t *testing.T) {
	sender, err := NewUDPSender("127.0.0.1:9")
	if err != nil {
		t.Skipf("cannot dial loopback: %v", err)
	}
	if err := sender.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sender.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := sender.Send([]byte{1}); !errors.Is(err, ErrSenderClosed) {
		t.Errorf("Send after Close = %v, want ErrSenderClosed", err)
	}
}

func TestNewUDPSenderBadAddress(t *testing.T) {
	if _, err := NewUDPSender("not an address"); err == nil {
		t.Error("expected error for bad address")
	}
}
