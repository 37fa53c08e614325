package protocol

import (
	"cmp"
	"slices"

	"github.com/dd0wney/replcore/pkg/codec"
	"github.com/dd0wney/replcore/pkg/serverstate"
)

// DSInfo describes a directory server replica
type DSInfo struct {
	ReplicaID uint16
	// RSID is the replication server the directory server is connected to
	RSID          uint16
	GenerationID  int64
	Status        ServerStatus
	Assured       bool
	AssuredMode   AssuredMode
	SafeDataLevel uint8
	GroupID       uint8
	URL           string
	ReferralURLs  []string
	ECLIncludes   []string
	ServerState   serverstate.State
}

// RSInfo describes a replication server replica
type RSInfo struct {
	ReplicaID    uint16
	GenerationID int64
	GroupID      uint8
	Weight       int32
	ServerURL    string
	ServerState  serverstate.State
}

// TopologyMsg carries the known directory and replication servers
type TopologyMsg struct {
	ds []DSInfo
	rs []RSInfo
}

// NewTopologyMsg creates a topology message. Both lists are ordered by
// replica id; for duplicate ids the first entry wins.
func NewTopologyMsg(ds []DSInfo, rs []RSInfo) *TopologyMsg {
	dsCopy := make([]DSInfo, 0, len(ds))
	for _, info := range ds {
		if info.AssuredMode == 0 {
			info.AssuredMode = DefaultAssuredMode
		}
		if info.SafeDataLevel == 0 {
			info.SafeDataLevel = DefaultSafeDataLevel
		}
		info.ReferralURLs = cloneStrings(info.ReferralURLs)
		info.ECLIncludes = cloneStrings(info.ECLIncludes)
		dsCopy = append(dsCopy, info)
	}
	slices.SortStableFunc(dsCopy, func(a, b DSInfo) int { return cmp.Compare(a.ReplicaID, b.ReplicaID) })
	dsCopy = slices.CompactFunc(dsCopy, func(a, b DSInfo) bool { return a.ReplicaID == b.ReplicaID })

	rsCopy := slices.Clone(rs)
	slices.SortStableFunc(rsCopy, func(a, b RSInfo) int { return cmp.Compare(a.ReplicaID, b.ReplicaID) })
	rsCopy = slices.CompactFunc(rsCopy, func(a, b RSInfo) bool { return a.ReplicaID == b.ReplicaID })

	return &TopologyMsg{ds: normalize(dsCopy), rs: normalize(rsCopy)}
}

func (*TopologyMsg) Type() MsgType { return TypeTopology }
func (*TopologyMsg) isMessage()    {}

// DSInfos returns the directory servers ordered by replica id
func (m *TopologyMsg) DSInfos() []DSInfo { return m.ds }

// RSInfos returns the replication servers ordered by replica id
func (m *TopologyMsg) RSInfos() []RSInfo { return m.rs }

// DS returns the directory server with the given id
func (m *TopologyMsg) DS(replicaID uint16) (DSInfo, bool) {
	i, ok := slices.BinarySearchFunc(m.ds, replicaID, func(d DSInfo, id uint16) int { return cmp.Compare(d.ReplicaID, id) })
	if !ok {
		return DSInfo{}, false
	}
	return m.ds[i], true
}

// RS returns the replication server with the given id
func (m *TopologyMsg) RS(replicaID uint16) (RSInfo, bool) {
	i, ok := slices.BinarySearchFunc(m.rs, replicaID, func(r RSInfo, id uint16) int { return cmp.Compare(r.ReplicaID, id) })
	if !ok {
		return RSInfo{}, false
	}
	return m.rs[i], true
}

// Bytes encodes the message for protocol version v
func (m *TopologyMsg) Bytes(v Version) []byte {
	w := beginEncode(TypeTopology, v, 64*(len(m.ds)+len(m.rs)+1))
	w.int32(int32(len(m.ds)))
	for _, info := range m.ds {
		w.AppendByteArray(encodeDSInfo(info, v))
	}
	w.int32(int32(len(m.rs)))
	for _, info := range m.rs {
		w.AppendByteArray(encodeRSInfo(info, v))
	}
	return w.Bytes()
}

func encodeDSInfo(info DSInfo, v Version) []byte {
	w := writer{Builder: codec.NewBuilder(64 + info.ServerState.EncodedLen()), v: v}
	w.AppendShort(info.ReplicaID)
	w.AppendShort(info.RSID)
	w.int64(info.GenerationID)
	w.AppendByte(byte(info.Status))
	w.AppendBool(info.Assured)
	w.AppendByte(byte(info.AssuredMode))
	w.AppendByte(info.SafeDataLevel)
	w.AppendByte(info.GroupID)
	w.AppendString(info.URL)
	w.AppendStrings(info.ReferralURLs)
	if v.Has(FieldECLIncludes) {
		w.AppendStrings(info.ECLIncludes)
	}
	return w.AppendServerStateMustComeLast(info.ServerState)
}

func encodeRSInfo(info RSInfo, v Version) []byte {
	w := writer{Builder: codec.NewBuilder(32 + info.ServerState.EncodedLen()), v: v}
	w.AppendShort(info.ReplicaID)
	w.int64(info.GenerationID)
	w.AppendByte(info.GroupID)
	if v.Has(FieldRSWeight) {
		w.AppendInt(info.Weight)
	}
	if v.Has(FieldRSServerURL) {
		w.AppendString(info.ServerURL)
	}
	return w.AppendServerStateMustComeLast(info.ServerState)
}

func decodeTopology(r reader) (Message, error) {
	dsCount, err := r.count("DS info count", 4)
	if err != nil {
		return nil, err
	}
	ds := make([]DSInfo, 0, dsCount)
	for range dsCount {
		block, err := r.NextByteArray()
		if err != nil {
			return nil, err
		}
		info, err := decodeDSInfo(reader{Scanner: codec.NewScanner(block), v: r.v})
		if err != nil {
			return nil, err
		}
		ds = append(ds, info)
	}

	rsCount, err := r.count("RS info count", 4)
	if err != nil {
		return nil, err
	}
	rs := make([]RSInfo, 0, rsCount)
	for range rsCount {
		block, err := r.NextByteArray()
		if err != nil {
			return nil, err
		}
		info, err := decodeRSInfo(reader{Scanner: codec.NewScanner(block), v: r.v})
		if err != nil {
			return nil, err
		}
		rs = append(rs, info)
	}
	return NewTopologyMsg(ds, rs), nil
}

// decodeDSInfo reads one nested DS record. Offsets in errors are relative to
// the record.
func decodeDSInfo(r reader) (DSInfo, error) {
	info := DSInfo{ECLIncludes: defaultFor[[]string](FieldECLIncludes)}
	var err error
	if info.ReplicaID, err = r.NextShort(); err != nil {
		return info, truncated(r.Scanner, err, "DS info")
	}
	if info.RSID, err = r.NextShort(); err != nil {
		return info, truncated(r.Scanner, err, "DS info")
	}
	if info.GenerationID, err = r.int64(); err != nil {
		return info, truncated(r.Scanner, err, "DS info")
	}
	if info.Status, err = r.status(); err != nil {
		return info, truncated(r.Scanner, err, "DS info")
	}
	if info.Assured, err = r.NextBool(); err != nil {
		return info, truncated(r.Scanner, err, "DS info")
	}
	if info.AssuredMode, err = r.assuredMode(); err != nil {
		return info, truncated(r.Scanner, err, "DS info")
	}
	if info.SafeDataLevel, err = r.safeDataLevel(); err != nil {
		return info, truncated(r.Scanner, err, "DS info")
	}
	if info.GroupID, err = r.NextByte(); err != nil {
		return info, truncated(r.Scanner, err, "DS info")
	}
	if info.URL, err = r.NextString(); err != nil {
		return info, truncated(r.Scanner, err, "DS info")
	}
	if info.ReferralURLs, err = r.strings(); err != nil {
		return info, truncated(r.Scanner, err, "DS info")
	}
	if r.v.Has(FieldECLIncludes) {
		if info.ECLIncludes, err = r.strings(); err != nil {
			return info, truncated(r.Scanner, err, "DS info")
		}
	}
	if info.ServerState, err = r.NextServerState(); err != nil {
		return info, truncated(r.Scanner, err, "DS info")
	}
	return info, nil
}

// decodeRSInfo reads one nested RS record. Offsets in errors are relative to
// the record.
func decodeRSInfo(r reader) (RSInfo, error) {
	info := RSInfo{
		Weight:    defaultFor[int32](FieldRSWeight),
		ServerURL: defaultFor[string](FieldRSServerURL),
	}
	var err error
	if info.ReplicaID, err = r.NextShort(); err != nil {
		return info, truncated(r.Scanner, err, "RS info")
	}
	if info.GenerationID, err = r.int64(); err != nil {
		return info, truncated(r.Scanner, err, "RS info")
	}
	if info.GroupID, err = r.NextByte(); err != nil {
		return info, truncated(r.Scanner, err, "RS info")
	}
	if r.v.Has(FieldRSWeight) {
		if info.Weight, err = r.NextInt(); err != nil {
			return info, truncated(r.Scanner, err, "RS info")
		}
	}
	if r.v.Has(FieldRSServerURL) {
		if info.ServerURL, err = r.NextString(); err != nil {
			return info, truncated(r.Scanner, err, "RS info")
		}
	}
	if info.ServerState, err = r.NextServerState(); err != nil {
		return info, truncated(r.Scanner, err, "RS info")
	}
	return info, nil
}
