package protocol

import (
	"slices"

	"github.com/dd0wney/replcore/pkg/csn"
)

// AckMsg reports the outcome of an assured update. An ack without errors
// means every expected server acknowledged in time.
type AckMsg struct {
	csn           csn.CSN
	timeout       bool
	wrongStatus   bool
	replayError   bool
	failedServers []uint16
}

// NewAckMsg creates a successful acknowledgment of c
func NewAckMsg(c csn.CSN) *AckMsg {
	return &AckMsg{csn: c}
}

func (*AckMsg) Type() MsgType { return TypeAck }
func (*AckMsg) isMessage()    {}

func (m *AckMsg) CSN() csn.CSN { return m.csn }

// HasTimeout reports whether some expected server did not answer in time
func (m *AckMsg) HasTimeout() bool { return m.timeout }

// HasWrongStatus reports whether some server could not ack because of its status
func (m *AckMsg) HasWrongStatus() bool { return m.wrongStatus }

// HasReplayError reports whether some server failed to replay the update
func (m *AckMsg) HasReplayError() bool { return m.replayError }

// FailedServers returns the ids of servers that did not acknowledge, in report order
func (m *AckMsg) FailedServers() []uint16 { return m.failedServers }

// HasErrors reports whether the ack carries any failure
func (m *AckMsg) HasErrors() bool {
	return m.timeout || m.wrongStatus || m.replayError || len(m.failedServers) > 0
}

// WithTimeout returns a copy of m with the timeout flag set
func (m *AckMsg) WithTimeout(timeout bool) *AckMsg {
	c := *m
	c.timeout = timeout
	return &c
}

// WithWrongStatus returns a copy of m with the wrong-status flag set
func (m *AckMsg) WithWrongStatus(wrongStatus bool) *AckMsg {
	c := *m
	c.wrongStatus = wrongStatus
	return &c
}

// WithReplayError returns a copy of m with the replay-error flag set
func (m *AckMsg) WithReplayError(replayError bool) *AckMsg {
	c := *m
	c.replayError = replayError
	return &c
}

// WithFailedServers returns a copy of m listing ids as failed
func (m *AckMsg) WithFailedServers(ids ...uint16) *AckMsg {
	c := *m
	c.failedServers = normalize(slices.Clone(ids))
	return &c
}

// Bytes encodes the ack for protocol version v. Before V2 only the CSN is
// carried.
func (m *AckMsg) Bytes(v Version) []byte {
	w := beginEncode(TypeAck, v, 48)
	w.csn(m.csn)
	if v.Has(FieldAckDetails) {
		w.AppendBool(m.timeout)
		w.AppendBool(m.wrongStatus)
		w.AppendBool(m.replayError)
		w.int32(int32(len(m.failedServers)))
		for _, id := range m.failedServers {
			w.AppendShort(id)
		}
	}
	return w.Bytes()
}

func decodeAck(r reader) (Message, error) {
	m := &AckMsg{}
	var err error
	if m.csn, err = r.csn(); err != nil {
		return nil, err
	}
	if !r.v.Has(FieldAckDetails) {
		return m, nil
	}
	if m.timeout, err = r.NextBool(); err != nil {
		return nil, err
	}
	if m.wrongStatus, err = r.NextBool(); err != nil {
		return nil, err
	}
	if m.replayError, err = r.NextBool(); err != nil {
		return nil, err
	}
	n, err := r.count("failed servers", 2)
	if err != nil {
		return nil, err
	}
	for range n {
		id, err := r.NextShort()
		if err != nil {
			return nil, err
		}
		m.failedServers = append(m.failedServers, id)
	}
	return m, nil
}
