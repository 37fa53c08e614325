// Package assured tracks assured updates until the replicas they wait for
// acknowledge them or the caller gives up.
package assured

import (
	"slices"

	"github.com/dd0wney/replcore/pkg/csn"
	"github.com/dd0wney/replcore/pkg/protocol"
)

// Expectation describes which replicas must acknowledge an assured update
type Expectation struct {
	CSN   csn.CSN
	Mode  protocol.AssuredMode
	Level uint8
	// Servers are the replicas whose acknowledgment counts, ordered by id
	Servers []uint16
	// Required is how many of Servers must acknowledge
	Required int
	// WrongStatus lists replicas of the group that cannot acknowledge
	// because they are not in normal status
	WrongStatus []uint16
}

// Expect computes the expectation for an update sent by origin, a member of
// groupID, given the current topology. A non-assured update expects nothing.
//
// Safe-data level L waits for L-1 replication servers of the group, capped
// at the number of such servers. Safe-read waits for every directory server
// of the group except origin; those not in normal status are reported as
// wrong status instead of awaited.
func Expect(update protocol.UpdateMsg, origin uint16, groupID uint8, topo *protocol.TopologyMsg) Expectation {
	exp := Expectation{
		CSN:   update.CSN(),
		Mode:  update.AssuredMode(),
		Level: update.SafeDataLevel(),
	}
	if !update.IsAssured() || topo == nil {
		return exp
	}

	switch exp.Mode {
	case protocol.AssuredModeSafeData:
		for _, rs := range topo.RSInfos() {
			if rs.GroupID == groupID && rs.ReplicaID != origin {
				exp.Servers = append(exp.Servers, rs.ReplicaID)
			}
		}
		exp.Required = min(int(exp.Level)-1, len(exp.Servers))
	case protocol.AssuredModeSafeRead:
		for _, ds := range topo.DSInfos() {
			if ds.GroupID != groupID || ds.ReplicaID == origin {
				continue
			}
			if ds.Status != protocol.StatusNormal {
				exp.WrongStatus = append(exp.WrongStatus, ds.ReplicaID)
				continue
			}
			exp.Servers = append(exp.Servers, ds.ReplicaID)
		}
		exp.Required = len(exp.Servers)
	}
	return exp
}

// Satisfied reports whether nothing has to be awaited
func (e Expectation) Satisfied() bool {
	return e.Required <= 0
}

func (e Expectation) expects(id uint16) bool {
	return slices.Contains(e.Servers, id)
}
