package rbac

const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

const (
	PermChangeSettings       = "teameval:changesettings"
	PermCreateQuestionnaire  = "teameval:createquestionnaire"
	PermSubmitQuestionnaire  = "teameval:submitquestionnaire"
	PermViewAllTeams         = "teameval:viewallteams"
	PermInvalidateAssessment = "teameval:invalidateassessment"
	PermRelease              = "teameval:release"
	PermReset                = "teameval:reset"
	PermGrade                = "teameval:grade"
	PermRoster               = "teameval:roster"
)

var AllPerms = []string{
	PermChangeSettings,
	PermCreateQuestionnaire,
	PermSubmitQuestionnaire,
	PermViewAllTeams,
	PermInvalidateAssessment,
	PermRelease,
	PermReset,
	PermGrade,
	PermRoster,
}

// RolePermissions is the default policy.
var RolePermissions = map[string][]string{
	RoleStudent: {
		PermSubmitQuestionnaire,
	},
	RoleTeacher: {
		PermChangeSettings,
		PermCreateQuestionnaire,
		PermViewAllTeams,
		PermInvalidateAssessment,
		PermRelease,
		PermGrade,
	},
	RoleAdmin: {
		"*", // everything
	},
}
