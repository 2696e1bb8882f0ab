package iec104

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// Session supervises one RTU link: it owns the TCP connection, the
// receive buffer and the acknowledgement engine. Everything runs on the
// caller's goroutine; Run blocks until the peer closes the connection or
// the transport fails.
type Session struct {
	cfg    *Config
	tc     *tls.Config
	policy *TxPolicy

	conn net.Conn
	rx   rxBuffer
	ack  *AckEngine

	startdtSent bool
	lastRead    time.Time
}

func NewSession(cfg *Config) (*Session, error) {
	if err := cfg.Valid(); err != nil {
		return nil, err
	}
	return &Session{
		cfg:    cfg,
		policy: NewTxPolicy(cfg),
		ack:    NewAckEngine(cfg),
	}, nil
}

// SetTLS provides the TLS configuration used when RemoteAddress carries
// a tls scheme.
func (s *Session) SetTLS(tc *tls.Config) { s.tc = tc }

// Stats returns the acknowledgement trigger counters.
func (s *Session) Stats() AckStats { return s.ack.Stats }

// Connect dials the RTU and performs the optional STARTDT handshake.
// All link state from a previous connection is discarded first.
func (s *Session) Connect() error {
	if err := s.dial(); err != nil {
		return err
	}

	// After the establishment of a TCP connection, all sequencing and
	// acknowledgement state restarts from zero.
	s.rx.Reset()
	s.ack.Reset()
	s.startdtSent = false
	s.lastRead = time.Now()

	_lg.Infof("connected with %s", s.conn.RemoteAddr())
	if s.cfg.SendStartDT {
		if err := s.sendStartDT(); err != nil {
			return err
		}
	} else {
		_lg.Info("startdt act disabled; most RTUs send no data without it")
	}
	return nil
}

func (s *Session) dial() (err error) {
	server, err := s.cfg.serverURL()
	if err != nil {
		return err
	}
	timeout := s.cfg.ConnectTimeout.std()

	var conn net.Conn
	switch server.Scheme {
	case "tcp":
		conn, err = net.DialTimeout("tcp", server.Host, timeout)
	case "ssl", "tls", "tcps":
		conn, err = tls.DialWithDialer(&net.Dialer{Timeout: timeout}, "tcp", server.Host, s.tc)
	default:
		return fmt.Errorf("unknown schema: %s", server.Scheme)
	}
	if err != nil {
		return err
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
	}
	s.conn = conn
	return nil
}

// Close terminates the connection. It is safe to call after Run returns.
func (s *Session) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// Run drives the link until the peer closes it or the transport fails.
// A closed connection is a normal termination and returns nil; read
// timeouts are idle cycles, not errors. Incomplete APDU state dies with
// the connection.
func (s *Session) Run() error {
	buf := make([]byte, 4096)
	for {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout.std())); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}
		n, err := s.conn.Read(buf)
		if n > 0 {
			s.lastRead = time.Now()
			s.rx.Append(buf[:n])
			s.drain()
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				_lg.Info("connection closed by peer")
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.onIdle()
				continue
			}
			return fmt.Errorf("read: %w", err)
		}
	}
}

// drain processes every complete APDU currently buffered, in arrival
// order.
func (s *Session) drain() {
	for {
		apdu, ok := s.rx.Next()
		if !ok {
			return
		}
		_lg.Debugf("recv %d bytes: [% X]", len(apdu), apdu)
		s.handleFrame(Classify(apdu))
	}
}

func (s *Session) handleFrame(frame Frame) {
	switch f := frame.(type) {
	case *UFrame:
		_lg.Infof("recv u frame: %s", f.Function)
		if f.Function == UStartDTCon {
			_lg.Info("startdt confirmed; data may start flowing")
		}
	case *SFrame:
		_lg.Infof("recv s frame: N(R)=%d", f.RecvSN)
	case *IFrame:
		s.handleIFrame(f)
	case *UnknownFrame:
		_lg.Warnf("recv unrecognized frame: cf1=0x%02X", f.Cf1)
	}
}

func (s *Session) handleIFrame(f *IFrame) {
	_lg.Infof("recv i frame: N(S)=%d N(R)=%d", f.SendSN, f.RecvSN)
	if a := f.Summary; a != nil {
		name := TypeName(a.TypeID)
		if name != "" {
			name = " (" + name + ")"
		}
		_lg.Infof("  asdu: type_id=%d%s vsq=0x%02X cot=%d casdu=%d ioa_first=%d",
			a.TypeID, name, a.VSQ, a.COT, a.CASDU, a.IOAFirst)
	} else {
		_lg.Info("  asdu: short or absent")
	}

	d := s.ack.OnInformation(f.SendSN, time.Now())
	_lg.Infof("  window_used ~ %d/%d (%d%%)",
		d.WindowUsed, s.cfg.SendWindowK, uint32(d.WindowUsed)*100/uint32(s.cfg.SendWindowK))
	if d.Fire() {
		s.sendAck(d)
	}
}

// onIdle runs on every read timeout: it settles an overdue
// acknowledgement and optionally emits the keep-alive.
func (s *Session) onIdle() {
	if d, ok := s.ack.OnIdle(time.Now()); ok {
		s.sendAck(d)
	}

	if s.cfg.SendTestFRWhenIdle && time.Since(s.lastRead) > s.cfg.IdleTestInterval.std() {
		apdu := BuildUFrame(UTestFRAct)
		if err := s.send(apdu); err != nil {
			_lg.Warnf("testfr act not sent: %v", err)
		} else {
			_lg.Infof("send testfr act (idle): [% X]", apdu)
		}
		s.lastRead = time.Now()
	}
}

// sendAck transmits the acknowledgement a fired decision calls for. The
// engine state is only committed once the frame was actually written, so
// a policy rejection or write failure keeps the triggers armed and the
// timer naturally retries on the next opportunity.
func (s *Session) sendAck(d AckDecision) {
	apdu := BuildSAck(d.NextNR)
	if err := s.send(apdu); err != nil {
		_lg.Warnf("s ack N(R)=%d not sent: %v", d.NextNR, err)
		return
	}
	s.ack.Confirm(d)
	st := s.ack.Stats
	_lg.Infof("send s ack N(R)=%d (reason: %s) [% X]", d.NextNR, d.Trigger, apdu)
	_lg.Infof("  ack_stats: w=%d t2=%d emergency=%d", st.Count, st.Timer, st.Emergency)
}

func (s *Session) sendStartDT() error {
	if s.startdtSent {
		_lg.Info("startdt act already sent; skipping")
		return nil
	}
	apdu := BuildUFrame(UStartDTAct)
	if err := s.send(apdu); err != nil {
		return err
	}
	s.startdtSent = true
	_lg.Infof("send startdt act: [% X]", apdu)
	return nil
}

// send is the only path to the wire. Every outgoing APDU passes the
// transmit policy first.
func (s *Session) send(apdu []byte) error {
	if err := s.policy.Enforce(apdu); err != nil {
		return err
	}
	if _, err := s.conn.Write(apdu); err != nil {
		return fmt.Errorf("write to socket: %w", err)
	}
	return nil
}
