package rtp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"

	"github.com/zsiec/av1rtp/internal/av1"
	"github.com/zsiec/av1rtp/internal/config"
	"github.com/zsiec/av1rtp/internal/logger"
	"github.com/zsiec/av1rtp/internal/metrics"
)

// TemporalUnitHandler receives each reassembled temporal-unit payload (raw
// concatenated OBU bytes) together with its RTP timestamp.
type TemporalUnitHandler func(payload []byte, timestamp uint32) error

// Receiver reads RTP packets from a UDP socket, feeds the depacketizer and
// hands complete temporal units to the handler. Loss is tracked per
// sequence number and reported upstream through periodic RTCP receiver
// reports; on the reassembly side loss surfaces only as discarded partial
// buffers, never as a failure.
type Receiver struct {
	streamID     string
	conn         *net.UDPConn
	rtcpConn     net.Conn
	depacketizer *av1.Depacketizer
	tracker      *LossTracker
	handler      TemporalUnitHandler
	logger       logger.Logger

	bufferSize   int
	rtcpInterval time.Duration
	ssrc         uint32
	ssrcKnown    bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewReceiver binds the listen socket. rtcpConn may be nil to disable
// receiver reports.
func NewReceiver(cfg *config.RTPConfig, handler TemporalUnitHandler, rtcpConn net.Conn, log logger.Logger) (*Receiver, error) {
	streamID := uuid.New().String()
	if log == nil {
		log = logger.NewNullLogger()
	}
	log = log.WithField("stream_id", streamID)

	addr := &net.UDPAddr{
		IP:   net.ParseIP(cfg.ListenAddr),
		Port: cfg.Port,
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}

	r := &Receiver{
		streamID:     streamID,
		conn:         conn,
		rtcpConn:     rtcpConn,
		depacketizer: av1.NewDepacketizer(log),
		tracker:      NewLossTracker(),
		handler:      handler,
		logger:       log,
		bufferSize:   cfg.BufferSize,
		rtcpInterval: cfg.RTCPInterval,
	}

	metrics.AddSessionsActive(1)
	log.WithField("listen", addr.String()).Info("RTP receiver started")
	return r, nil
}

// StreamID returns the receiver's stream identifier.
func (r *Receiver) StreamID() string {
	return r.streamID
}

// Start launches the read loop and the RTCP report ticker. It returns
// immediately; Stop shuts both down.
func (r *Receiver) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.readLoop(ctx)
	}()

	if r.rtcpConn != nil {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.reportLoop(ctx)
		}()
	}
}

// Stop terminates the loops and releases resources.
func (r *Receiver) Stop() error {
	if r.cancel != nil {
		r.cancel()
	}
	err := r.conn.Close()
	r.wg.Wait()

	r.depacketizer.Reset()
	metrics.AddSessionsActive(-1)
	metrics.DeleteStreamMetrics(r.streamID)
	r.logger.Info("RTP receiver stopped")
	return err
}

func (r *Receiver) readLoop(ctx context.Context) {
	buf := make([]byte, r.bufferSize)
	for {
		n, _, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			r.logger.WithError(err).Warn("UDP read failed")
			continue
		}

		var pkt rtp.Packet
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			r.logger.WithError(err).Warn("Dropping packet that is not valid RTP")
			continue
		}

		r.handlePacket(&pkt)
	}
}

func (r *Receiver) handlePacket(pkt *rtp.Packet) {
	r.mu.Lock()
	if !r.ssrcKnown {
		r.ssrc = pkt.SSRC
		r.ssrcKnown = true
	}
	r.mu.Unlock()

	metrics.IncPacketsReceived(r.streamID)
	if lost := r.tracker.Process(pkt.SequenceNumber); lost > 0 {
		metrics.AddPacketsLost(r.streamID, lost)
		r.logger.WithFields(logger.Fields{
			"lost":     lost,
			"sequence": pkt.SequenceNumber,
		}).Debug("Packet loss detected")
	}

	before := r.depacketizer.Stats()
	payload, err := r.depacketizer.Feed(&av1.Packet{
		Timestamp:      pkt.Timestamp,
		SequenceNumber: pkt.SequenceNumber,
		Payload:        pkt.Payload,
	})
	if err != nil {
		metrics.IncMalformedDatagrams(r.streamID)
		r.logger.WithError(err).WithField("sequence", pkt.SequenceNumber).
			Warn("Rejected datagram")
		return
	}

	after := r.depacketizer.Stats()
	if d := after.PartialsDiscarded - before.PartialsDiscarded; d > 0 {
		metrics.IncPartialsDiscarded(r.streamID)
	}
	if d := after.OrphansDropped - before.OrphansDropped; d > 0 {
		metrics.IncOrphanFragments(r.streamID)
	}

	if payload == nil {
		return
	}

	metrics.IncTemporalUnitsReassembled(r.streamID)
	if err := r.handler(payload, pkt.Timestamp); err != nil {
		r.logger.WithError(err).Error("Temporal unit handler failed")
	}
}

func (r *Receiver) reportLoop(ctx context.Context) {
	ticker := time.NewTicker(r.rtcpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.sendReceiverReport(); err != nil {
				r.logger.WithError(err).Warn("Failed to send RTCP receiver report")
			}
		}
	}
}

func (r *Receiver) sendReceiverReport() error {
	r.mu.Lock()
	known := r.ssrcKnown
	ssrc := r.ssrc
	r.mu.Unlock()
	if !known {
		return nil
	}

	snap := r.tracker.Snapshot()
	rr := &rtcp.ReceiverReport{
		Reports: []rtcp.ReceptionReport{{
			SSRC:               ssrc,
			FractionLost:       snap.FractionLost,
			TotalLost:          snap.CumulativeLost,
			LastSequenceNumber: snap.ExtendedHighestSeq,
		}},
	}

	raw, err := rr.Marshal()
	if err != nil {
		return fmt.Errorf("marshaling receiver report: %w", err)
	}
	if _, err := r.rtcpConn.Write(raw); err != nil {
		return fmt.Errorf("writing receiver report: %w", err)
	}
	return nil
}
