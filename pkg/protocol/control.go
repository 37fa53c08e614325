package protocol

// SessionInfo is what a directory server announces when its session starts
type SessionInfo struct {
	Status        ServerStatus
	Assured       bool
	AssuredMode   AssuredMode
	SafeDataLevel uint8
	ReferralURLs  []string
	ECLIncludes   []string
}

// StartSessionMsg starts the update flow of a session
type StartSessionMsg struct {
	info SessionInfo
}

// NewStartSessionMsg creates a start-session message. A zero assured mode or
// level takes the protocol default.
func NewStartSessionMsg(info SessionInfo) *StartSessionMsg {
	if info.AssuredMode == 0 {
		info.AssuredMode = DefaultAssuredMode
	}
	if info.SafeDataLevel == 0 {
		info.SafeDataLevel = DefaultSafeDataLevel
	}
	info.ReferralURLs = cloneStrings(info.ReferralURLs)
	info.ECLIncludes = cloneStrings(info.ECLIncludes)
	return &StartSessionMsg{info: info}
}

func (*StartSessionMsg) Type() MsgType { return TypeStartSession }
func (*StartSessionMsg) isMessage()    {}

func (m *StartSessionMsg) Info() SessionInfo { return m.info }

// Bytes encodes the message for protocol version v
func (m *StartSessionMsg) Bytes(v Version) []byte {
	w := beginEncode(TypeStartSession, v, 64)
	w.AppendByte(byte(m.info.Status))
	w.AppendBool(m.info.Assured)
	w.AppendByte(byte(m.info.AssuredMode))
	w.AppendByte(m.info.SafeDataLevel)
	w.AppendStrings(m.info.ReferralURLs)
	if v.Has(FieldECLIncludes) {
		w.AppendStrings(m.info.ECLIncludes)
	}
	return w.Bytes()
}

func decodeStartSession(r reader) (Message, error) {
	info := SessionInfo{ECLIncludes: defaultFor[[]string](FieldECLIncludes)}
	var err error
	if info.Status, err = r.status(); err != nil {
		return nil, err
	}
	if info.Assured, err = r.NextBool(); err != nil {
		return nil, err
	}
	if info.AssuredMode, err = r.assuredMode(); err != nil {
		return nil, err
	}
	if info.SafeDataLevel, err = r.safeDataLevel(); err != nil {
		return nil, err
	}
	if info.ReferralURLs, err = r.strings(); err != nil {
		return nil, err
	}
	if r.v.Has(FieldECLIncludes) {
		if info.ECLIncludes, err = r.strings(); err != nil {
			return nil, err
		}
	}
	return &StartSessionMsg{info: info}, nil
}

// WindowMsg grants the peer permission to send more updates
type WindowMsg struct {
	numAck int32
}

// NewWindowMsg creates a window message granting n more updates
func NewWindowMsg(n int32) *WindowMsg {
	return &WindowMsg{numAck: n}
}

func (*WindowMsg) Type() MsgType { return TypeWindow }
func (*WindowMsg) isMessage()    {}

func (m *WindowMsg) NumAck() int32 { return m.numAck }

// Bytes encodes the message for protocol version v
func (m *WindowMsg) Bytes(v Version) []byte {
	w := beginEncode(TypeWindow, v, 16)
	w.int32(m.numAck)
	return w.Bytes()
}

func decodeWindow(r reader) (Message, error) {
	n, err := r.int32()
	if err != nil {
		return nil, err
	}
	return &WindowMsg{numAck: n}, nil
}

// ErrorMsg reports a replication failure from one server to another
type ErrorMsg struct {
	senderID      uint16
	destinationID uint16
	details       string
}

// NewErrorMsg creates an error message
func NewErrorMsg(senderID, destinationID uint16, details string) *ErrorMsg {
	return &ErrorMsg{senderID: senderID, destinationID: destinationID, details: details}
}

func (*ErrorMsg) Type() MsgType { return TypeError }
func (*ErrorMsg) isMessage()    {}

func (m *ErrorMsg) SenderID() uint16      { return m.senderID }
func (m *ErrorMsg) DestinationID() uint16 { return m.destinationID }
func (m *ErrorMsg) Details() string       { return m.details }

// Bytes encodes the message for protocol version v
func (m *ErrorMsg) Bytes(v Version) []byte {
	w := beginEncode(TypeError, v, 16+len(m.details))
	w.AppendShort(m.senderID)
	w.AppendShort(m.destinationID)
	w.AppendString(m.details)
	return w.Bytes()
}

func decodeError(r reader) (Message, error) {
	m := &ErrorMsg{}
	var err error
	if m.senderID, err = r.NextShort(); err != nil {
		return nil, err
	}
	if m.destinationID, err = r.NextShort(); err != nil {
		return nil, err
	}
	if m.details, err = r.NextString(); err != nil {
		return nil, err
	}
	return m, nil
}

// ChangeStatusMsg asks for, or announces, a server status transition
type ChangeStatusMsg struct {
	requested ServerStatus
	newStatus ServerStatus
}

// NewChangeStatusMsg creates a change-status message
func NewChangeStatusMsg(requested, newStatus ServerStatus) *ChangeStatusMsg {
	return &ChangeStatusMsg{requested: requested, newStatus: newStatus}
}

func (*ChangeStatusMsg) Type() MsgType { return TypeChangeStatus }
func (*ChangeStatusMsg) isMessage()    {}

func (m *ChangeStatusMsg) RequestedStatus() ServerStatus { return m.requested }
func (m *ChangeStatusMsg) NewStatus() ServerStatus       { return m.newStatus }

// Bytes encodes the message for protocol version v
func (m *ChangeStatusMsg) Bytes(v Version) []byte {
	w := beginEncode(TypeChangeStatus, v, 3)
	w.AppendByte(byte(m.requested))
	w.AppendByte(byte(m.newStatus))
	return w.Bytes()
}

func decodeChangeStatus(r reader) (Message, error) {
	m := &ChangeStatusMsg{}
	var err error
	if m.requested, err = r.status(); err != nil {
		return nil, err
	}
	if m.newStatus, err = r.status(); err != nil {
		return nil, err
	}
	return m, nil
}
