package rtp

import (
	"context"
	"fmt"
	"math/rand"
	"net"

	"github.com/google/uuid"
	"github.com/pion/rtp"
	"golang.org/x/time/rate"

	"github.com/zsiec/av1rtp/internal/av1"
	"github.com/zsiec/av1rtp/internal/config"
	"github.com/zsiec/av1rtp/internal/logger"
	"github.com/zsiec/av1rtp/internal/metrics"
)

// Sender packetizes temporal units and transmits them as RTP packets over
// UDP. One Sender carries one coded sequence; the packetizer's session-start
// flag lives inside it, so concurrent streams need independent Senders.
type Sender struct {
	streamID   string
	conn       net.Conn
	packetizer *av1.Packetizer
	limiter    *rate.Limiter
	logger     logger.Logger

	ssrc        uint32
	payloadType uint8
	sequence    uint16
}

// NewSender dials the target address and prepares a packetizer with the
// configured payload budget.
func NewSender(rtpCfg *config.RTPConfig, pktCfg *config.PacketizerConfig, log logger.Logger) (*Sender, error) {
	streamID := uuid.New().String()
	if log == nil {
		log = logger.NewNullLogger()
	}
	log = log.WithField("stream_id", streamID)

	packetizer, err := av1.NewPacketizer(pktCfg.MaxPayloadSize, log)
	if err != nil {
		return nil, fmt.Errorf("creating packetizer: %w", err)
	}

	conn, err := net.Dial("udp", rtpCfg.TargetAddr)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", rtpCfg.TargetAddr, err)
	}

	var limiter *rate.Limiter
	if pktCfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(pktCfg.RateLimit), pktCfg.MaxPayloadSize*4)
	}

	s := &Sender{
		streamID:    streamID,
		conn:        conn,
		packetizer:  packetizer,
		limiter:     limiter,
		logger:      log,
		ssrc:        rand.Uint32(),
		payloadType: rtpCfg.PayloadType,
	}

	metrics.AddSessionsActive(1)
	log.WithFields(logger.Fields{
		"target":       rtpCfg.TargetAddr,
		"ssrc":         s.ssrc,
		"payload_type": s.payloadType,
	}).Info("RTP sender started")

	return s, nil
}

// StreamID returns the sender's stream identifier.
func (s *Sender) StreamID() string {
	return s.streamID
}

// SendTemporalUnit packetizes one temporal unit and transmits its datagrams
// in order, all sharing timestamp and with the marker bit on the last.
func (s *Sender) SendTemporalUnit(ctx context.Context, obus [][]byte, timestamp uint32) error {
	datagrams, pktErr := s.packetizer.Packetize(obus)
	if pktErr != nil {
		// Oversized OBUs were skipped; the rest of the unit still goes out.
		metrics.IncEncodingErrors(s.streamID)
		s.logger.WithError(pktErr).Error("Packetizer skipped an OBU")
	}
	for _, d := range datagrams {
		if d.ContinuesInNext() && !d.ContinuesPrevious() {
			metrics.IncOBUsFragmented(s.streamID)
		}
		if s.limiter != nil {
			if err := s.limiter.WaitN(ctx, len(d.Payload)); err != nil {
				return fmt.Errorf("rate limit wait: %w", err)
			}
		}

		pkt := rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         d.Marker,
				PayloadType:    s.payloadType,
				SequenceNumber: s.sequence,
				Timestamp:      timestamp,
				SSRC:           s.ssrc,
			},
			Payload: d.Payload,
		}

		raw, err := pkt.Marshal()
		if err != nil {
			return fmt.Errorf("marshaling RTP packet: %w", err)
		}
		if _, err := s.conn.Write(raw); err != nil {
			return fmt.Errorf("sending RTP packet: %w", err)
		}

		s.sequence++
		metrics.IncDatagramsPacketized(s.streamID, len(d.Payload))
	}

	return pktErr
}

// Close releases the socket and the stream's metrics.
func (s *Sender) Close() error {
	metrics.AddSessionsActive(-1)
	metrics.DeleteStreamMetrics(s.streamID)
	s.logger.Info("RTP sender closed")
	return s.conn.Close()
}
