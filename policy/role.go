package policy

// Role is the kind of work a staff unit performs.
type Role string

const (
	RoleReception  Role = "reception"
	RoleAssessment Role = "assessment"
	RoleDepartment Role = "department"
	RoleEmergency  Role = "emergency"
	RoleLab        Role = "lab"
	RoleImaging    Role = "imaging"
	RoleSurgery    Role = "surgery"
	// RoleSurge is played by units borrowed for a surge episode.
	RoleSurge Role = "surge"
)

// Doctor reports whether the role examines patients, which is when waiting
// time stops counting.
func (r Role) Doctor() bool {
	switch r {
	case RoleDepartment, RoleEmergency, RoleSurge:
		return true
	}
	return false
}
