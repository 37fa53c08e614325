package protocol

import "fmt"

// Version is a replication wire-protocol generation
type Version uint8

const (
	// V1 is the original protocol: text CSNs and decimal-text integers
	V1 Version = iota + 1
	// V2 adds assured replication, groups, topology and sessions
	V2
	// V3 switches CSNs and integers to fixed-width binary
	V3
	// V4 adds external change log data and replication-server weights
	V4

	// VersionLast is the newest version this implementation speaks
	VersionLast = V4
)

// Valid reports whether v is a version this implementation knows
func (v Version) Valid() bool {
	return v >= V1 && v <= VersionLast
}

// String returns "v<n>"
func (v Version) String() string {
	return fmt.Sprintf("v%d", uint8(v))
}

// NegotiateVersion returns the version both sides can speak
func NegotiateVersion(local, peer Version) Version {
	if peer < local {
		return peer
	}
	return local
}

// Field identifies a version-gated part of the wire format
type Field uint8

const (
	FieldVersionByte Field = iota
	FieldAssuredMode
	FieldSafeDataLevel
	FieldBinaryCSN
	FieldBinaryInts
	FieldGroupID
	FieldDegradedThreshold
	FieldRenameMods
	FieldAckDetails
	FieldECLAttributes
	FieldChangeNumber
	FieldSubtreeDelete
	FieldRSWeight
	FieldRSServerURL
	FieldECLIncludes

	numFields
)

// Defaults used when decoding bytes from a version that predates a field
const (
	DefaultAssuredMode       = AssuredModeSafeData
	DefaultSafeDataLevel     = uint8(1)
	DefaultGroupID           = uint8(1)
	DefaultDegradedThreshold = int32(5000)
	DefaultRSWeight          = int32(1)

	// NoChangeNumber marks an update that carries no change number
	NoChangeNumber = int64(-1)
)

// fieldPolicy records the first version carrying a field and the value a
// decoder substitutes for older bytes. A new protocol version is added by
// extending this table.
type fieldPolicy struct {
	name  string
	since Version
	def   any
}

var fieldPolicies = [numFields]fieldPolicy{
	FieldVersionByte:       {"update header version byte", V2, nil},
	FieldAssuredMode:       {"assured mode", V2, DefaultAssuredMode},
	FieldSafeDataLevel:     {"safe data level", V2, DefaultSafeDataLevel},
	FieldBinaryCSN:         {"binary CSN", V3, nil},
	FieldBinaryInts:        {"binary integers", V3, nil},
	FieldGroupID:           {"group id", V2, DefaultGroupID},
	FieldDegradedThreshold: {"degraded status threshold", V2, DefaultDegradedThreshold},
	FieldRenameMods:        {"rename modifications", V2, [][]byte(nil)},
	FieldAckDetails:        {"ack failure details", V2, nil},
	FieldECLAttributes:     {"external change log attributes", V4, [][]byte(nil)},
	FieldChangeNumber:      {"change number", V4, NoChangeNumber},
	FieldSubtreeDelete:     {"subtree delete", V4, false},
	FieldRSWeight:          {"replication server weight", V4, DefaultRSWeight},
	FieldRSServerURL:       {"replication server URL", V4, ""},
	FieldECLIncludes:       {"external change log includes", V4, []string(nil)},
}

// Has reports whether bytes written at version v carry field f
func (v Version) Has(f Field) bool {
	return v >= fieldPolicies[f].since
}

// Since returns the first version carrying f
func (f Field) Since() Version {
	return fieldPolicies[f].since
}

// String returns the field's name
func (f Field) String() string {
	if f >= numFields {
		return fmt.Sprintf("field(%d)", uint8(f))
	}
	return fieldPolicies[f].name
}

// defaultFor returns the documented default of a field
func defaultFor[T any](f Field) T {
	return fieldPolicies[f].def.(T)
}
