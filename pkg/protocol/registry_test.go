package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/replcore/pkg/codec"
	"github.com/dd0wney/replcore/pkg/csn"
	"github.com/dd0wney/replcore/pkg/dn"
	"github.com/dd0wney/replcore/pkg/serverstate"
)

func TestVersionFieldTable(t *testing.T) {
	tests := []struct {
		field Field
		since Version
	}{
		{FieldVersionByte, V2},
		{FieldAssuredMode, V2},
		{FieldSafeDataLevel, V2},
		{FieldBinaryCSN, V3},
		{FieldBinaryInts, V3},
		{FieldGroupID, V2},
		{FieldDegradedThreshold, V2},
		{FieldRenameMods, V2},
		{FieldAckDetails, V2},
		{FieldECLAttributes, V4},
		{FieldChangeNumber, V4},
		{FieldSubtreeDelete, V4},
		{FieldRSWeight, V4},
		{FieldRSServerURL, V4},
		{FieldECLIncludes, V4},
	}

	for _, tt := range tests {
		t.Run(tt.field.String(), func(t *testing.T) {
			assert.Equal(t, tt.since, tt.field.Since())
			for _, v := range allVersions() {
				assert.Equal(t, v >= tt.since, v.Has(tt.field), "%s at %s", tt.field, v)
			}
		})
	}
}

func TestNegotiateVersion(t *testing.T) {
	assert.Equal(t, V2, NegotiateVersion(V4, V2))
	assert.Equal(t, V3, NegotiateVersion(V3, V4))
	assert.Equal(t, V4, NegotiateVersion(V4, V4))
	assert.Equal(t, VersionLast, NegotiateVersion(VersionLast, Version(9)), "a newer peer speaks our version")
	assert.False(t, Version(0).Valid())
	assert.False(t, Version(5).Valid())
}

func TestKindVersions(t *testing.T) {
	since, ok := TypeTopology.Since()
	require.True(t, ok)
	assert.Equal(t, V2, since)

	_, ok = MsgType(99).Since()
	assert.False(t, ok)
	assert.Equal(t, "unknown(99)", MsgType(99).String())
	assert.True(t, TypeModDN.IsUpdate())
	assert.False(t, TypeAck.IsUpdate())
}

func TestEncodeContractViolationsPanic(t *testing.T) {
	assert.Panics(t, func() { NewWindowMsg(1).Bytes(Version(0)) })
	assert.Panics(t, func() { NewWindowMsg(1).Bytes(VersionLast + 1) })
	assert.Panics(t, func() { NewChangeStatusMsg(StatusNormal, StatusDegraded).Bytes(V1) })
	assert.Panics(t, func() { NewTopologyMsg(nil, nil).Bytes(V1) })
	assert.Panics(t, func() { NewStartSessionMsg(SessionInfo{}).Bytes(V1) })
}

func TestRegistryDecodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		version Version
		cause   error
	}{
		{"empty input", nil, V4, ErrEmptyMessage},
		{"unknown tag", []byte{99, 0}, V4, ErrUnknownType},
		{"unknown version", []byte{byte(TypeWindow), '1', 0}, Version(7), ErrUnsupportedVersion},
		{"kind newer than version", NewChangeStatusMsg(StatusNormal, StatusDegraded).Bytes(V2), V1, ErrUnsupportedVersion},
		{"tag only", []byte{byte(TypeWindow)}, V4, codec.ErrTruncated},
		{"bad status", []byte{byte(TypeChangeStatus), 1, 9}, V2, ErrInvalidStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.input, tt.version)
			require.Error(t, err)
			assert.True(t, codec.IsFormatError(err), "expected a format error, got %v", err)
			assert.ErrorIs(t, err, tt.cause)
		})
	}
}

func TestAckMessage(t *testing.T) {
	c := csn.New(5000, 2, 9)

	ok := NewAckMsg(c)
	assert.False(t, ok.HasErrors())

	failed := ok.WithTimeout(true).WithFailedServers(12, 7)
	assert.True(t, failed.HasErrors())
	assert.False(t, ok.HasErrors(), "With returns a copy")
	assert.Equal(t, []uint16{12, 7}, failed.FailedServers())

	for _, v := range allVersions() {
		t.Run(v.String(), func(t *testing.T) {
			m, err := Decode(failed.Bytes(v), v)
			require.NoError(t, err)
			got := m.(*AckMsg)
			assert.Equal(t, c, got.CSN())
			if v.Has(FieldAckDetails) {
				assert.Equal(t, failed, got)
			} else {
				assert.False(t, got.HasErrors())
			}
		})
	}

	replay := NewAckMsg(c).WithReplayError(true).WithWrongStatus(true)
	m, err := Decode(replay.Bytes(V3), V3)
	require.NoError(t, err)
	assert.True(t, m.(*AckMsg).HasReplayError())
	assert.True(t, m.(*AckMsg).HasWrongStatus())
}

func testStartInfo() StartInfo {
	return StartInfo{
		ProtocolVersion:   VersionLast,
		BaseDN:            dn.MustParse("dc=example,dc=com"),
		ReplicaID:         301,
		ServerURL:         "ldap.example.com:8989",
		WindowSize:        100,
		HeartbeatInterval: 10 * time.Second,
		GenerationID:      48_879,
		SSLEncryption:     true,
		GroupID:           3,
		DegradedThreshold: 2500,
		ServerState:       serverstate.Of(csn.New(900, 1, 0), csn.New(1000, 301, 2)),
	}
}

func TestServerStartAcrossVersions(t *testing.T) {
	info := testStartInfo()

	for _, v := range allVersions() {
		t.Run(v.String(), func(t *testing.T) {
			b := NewServerStartMsg(info).Bytes(v)
			m, err := Decode(b, v)
			require.NoError(t, err)

			got := m.(*ServerStartMsg).Info()
			assert.Equal(t, v, got.ProtocolVersion, "version byte matches the layout")
			assert.True(t, info.BaseDN.Equal(got.BaseDN))
			assert.Equal(t, info.ReplicaID, got.ReplicaID)
			assert.Equal(t, info.ServerURL, got.ServerURL)
			assert.Equal(t, info.WindowSize, got.WindowSize)
			assert.Equal(t, info.HeartbeatInterval, got.HeartbeatInterval)
			assert.Equal(t, info.GenerationID, got.GenerationID)
			assert.True(t, got.SSLEncryption)
			assert.True(t, info.ServerState.Equal(got.ServerState))

			if v.Has(FieldGroupID) {
				assert.Equal(t, info.GroupID, got.GroupID)
				assert.Equal(t, info.DegradedThreshold, got.DegradedThreshold)
			} else {
				assert.Equal(t, DefaultGroupID, got.GroupID)
				assert.Equal(t, DefaultDegradedThreshold, got.DegradedThreshold)
			}
			assert.Equal(t, b, m.Bytes(v))
		})
	}
}

func TestReplServerStartDropsHeartbeat(t *testing.T) {
	info := testStartInfo()
	msg := NewReplServerStartMsg(info)
	assert.Zero(t, msg.Info().HeartbeatInterval)

	m, err := Decode(msg.Bytes(V2), V2)
	require.NoError(t, err)
	got := m.(*ReplServerStartMsg).Info()
	assert.Equal(t, info.ReplicaID, got.ReplicaID)
	assert.Equal(t, info.GenerationID, got.GenerationID)
	assert.Equal(t, info.DegradedThreshold, got.DegradedThreshold)
	assert.True(t, info.ServerState.Equal(got.ServerState))
}

func TestStartRejectsMissingServerState(t *testing.T) {
	b := NewServerStartMsg(testStartInfo()).Bytes(V4)
	// drop the whole server state: count plus two pairs
	cut := b[:len(b)-(4+2*(2+csn.Size))]

	_, err := Decode(cut, V4)
	require.Error(t, err)
	assert.ErrorIs(t, err, codec.ErrTruncated)
}

func TestStartSessionAcrossVersions(t *testing.T) {
	info := SessionInfo{
		Status:        StatusDegraded,
		Assured:       true,
		AssuredMode:   AssuredModeSafeRead,
		SafeDataLevel: 2,
		ReferralURLs:  []string{"ldap://a.example.com:389", "ldap://b.example.com:389"},
		ECLIncludes:   []string{"cn", "mail"},
	}
	msg := NewStartSessionMsg(info)

	for _, v := range []Version{V2, V3, V4} {
		t.Run(v.String(), func(t *testing.T) {
			m, err := Decode(msg.Bytes(v), v)
			require.NoError(t, err)
			got := m.(*StartSessionMsg).Info()
			assert.Equal(t, info.Status, got.Status)
			assert.Equal(t, info.AssuredMode, got.AssuredMode)
			assert.Equal(t, info.SafeDataLevel, got.SafeDataLevel)
			assert.Equal(t, info.ReferralURLs, got.ReferralURLs)
			if v.Has(FieldECLIncludes) {
				assert.Equal(t, info.ECLIncludes, got.ECLIncludes)
			} else {
				assert.Nil(t, got.ECLIncludes)
			}
		})
	}

	defaulted := NewStartSessionMsg(SessionInfo{Status: StatusNormal}).Info()
	assert.Equal(t, DefaultAssuredMode, defaulted.AssuredMode)
	assert.Equal(t, DefaultSafeDataLevel, defaulted.SafeDataLevel)
}

func TestControlMessages(t *testing.T) {
	for _, v := range allVersions() {
		window, err := Decode(NewWindowMsg(250).Bytes(v), v)
		require.NoError(t, err)
		assert.Equal(t, int32(250), window.(*WindowMsg).NumAck())

		e, err := Decode(NewErrorMsg(1, 2, "generation id mismatch").Bytes(v), v)
		require.NoError(t, err)
		assert.Equal(t, NewErrorMsg(1, 2, "generation id mismatch"), e)
	}

	cs, err := Decode(NewChangeStatusMsg(StatusNormal, StatusFullUpdate).Bytes(V2), V2)
	require.NoError(t, err)
	assert.Equal(t, StatusNormal, cs.(*ChangeStatusMsg).RequestedStatus())
	assert.Equal(t, StatusFullUpdate, cs.(*ChangeStatusMsg).NewStatus())

	assert.Equal(t, []byte{byte(TypeWindow), '2', '5', '0', 0}, NewWindowMsg(250).Bytes(V2), "V2 writes ints as text")
	assert.Equal(t, []byte{byte(TypeWindow), 0, 0, 0, 250}, NewWindowMsg(250).Bytes(V3))
}
