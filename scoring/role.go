package scoring

import (
	"fmt"
	"strings"
)

// Role is the closed set of roles an authenticated identity can hold.
type Role string

const (
	RoleJudge       Role = "judge"
	RoleHeadJudge   Role = "head_judge"
	RoleTallyMaster Role = "tally_master"
	RoleAuditor     Role = "auditor"
	RoleBoard       Role = "board"
	RoleAdmin       Role = "admin"
)

// Roles lists every valid role.
var Roles = []Role{RoleJudge, RoleHeadJudge, RoleTallyMaster, RoleAuditor, RoleBoard, RoleAdmin}

// ParseRole normalizes s and returns the matching Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Roles {
		if r == known {
			return r, nil
		}
	}
	return "", newError(CodeInvalidRole, fmt.Sprintf("unknown role %q", s), nil)
}

// Capability is a single permission in the capability matrix.
type Capability uint16

const (
	CapSubmitScore Capability = 1 << iota
	CapCertifyJudge
	CapCertifyTally
	CapCertifyAudit
	CapInitiateRemoval
	CapCosignAuditor
	CapCosignTallyMaster
	CapCosignHeadJudge
	CapViewResults
)

var capabilityNames = map[Capability]string{
	CapSubmitScore:       "submit_score",
	CapCertifyJudge:      "certify_judge",
	CapCertifyTally:      "certify_tally",
	CapCertifyAudit:      "certify_audit",
	CapInitiateRemoval:   "initiate_removal",
	CapCosignAuditor:     "cosign_auditor",
	CapCosignTallyMaster: "cosign_tally_master",
	CapCosignHeadJudge:   "cosign_head_judge",
	CapViewResults:       "view_results",
}

func (c Capability) String() string {
	if name, ok := capabilityNames[c]; ok {
		return name
	}
	return fmt.Sprintf("capability(%d)", uint16(c))
}

// capabilities is the role-to-capability matrix. Co-signature capabilities
// are held only by the matching role so that removal approvals always come
// from independent people.
func (r Role) capabilities() Capability {
	switch r {
	case RoleJudge:
		return CapSubmitScore | CapCertifyJudge
	case RoleHeadJudge:
		return CapSubmitScore | CapCertifyJudge | CapCosignHeadJudge | CapViewResults
	case RoleTallyMaster:
		return CapCertifyTally | CapCosignTallyMaster | CapViewResults
	case RoleAuditor:
		return CapCertifyAudit | CapCosignAuditor | CapViewResults
	case RoleBoard, RoleAdmin:
		return CapInitiateRemoval | CapViewResults
	default:
		return 0
	}
}

// Can reports whether r holds capability c.
func (r Role) Can(c Capability) bool {
	return r.capabilities()&c == c
}

// SignatureRole is a role that may co-sign a score removal request.
type SignatureRole string

const (
	SignAuditor     SignatureRole = "auditor"
	SignTallyMaster SignatureRole = "tally_master"
	SignHeadJudge   SignatureRole = "head_judge"
)

// ParseSignatureRole returns ErrInvalidRole for anything outside the
// co-signature set.
func ParseSignatureRole(s string) (SignatureRole, error) {
	switch r := SignatureRole(strings.ToLower(strings.TrimSpace(s))); r {
	case SignAuditor, SignTallyMaster, SignHeadJudge:
		return r, nil
	}
	return "", newError(CodeInvalidRole, fmt.Sprintf("role %q cannot co-sign a score removal", s), map[string]any{
		"allowed": []SignatureRole{SignAuditor, SignTallyMaster, SignHeadJudge},
	})
}

func (r SignatureRole) capability() Capability {
	switch r {
	case SignAuditor:
		return CapCosignAuditor
	case SignTallyMaster:
		return CapCosignTallyMaster
	default:
		return CapCosignHeadJudge
	}
}

// Required reports whether the signature gates the pending -> effective
// transition. The head judge signature is optional.
func (r SignatureRole) Required() bool {
	return r == SignAuditor || r == SignTallyMaster
}
