package post

// MemberStatus is the platform's raw membership status for the bot in a chat.
type MemberStatus string

const (
	StatusOwner         MemberStatus = "creator"
	StatusAdministrator MemberStatus = "administrator"
	StatusMember        MemberStatus = "member"
	StatusRestricted    MemberStatus = "restricted"
	StatusLeft          MemberStatus = "left"
	StatusKicked        MemberStatus = "kicked"
)

// PostPermission is the administrator "can post messages" flag.
// The platform only reports it for channels; everywhere else it is not applicable.
type PostPermission int

const (
	PostNotApplicable PostPermission = iota
	PostGranted
	PostDenied
)

func (p PostPermission) String() string {
	switch p {
	case PostGranted:
		return "granted"
	case PostDenied:
		return "denied"
	default:
		return "n/a"
	}
}

type Membership struct {
	Status  MemberStatus
	CanPost PostPermission
}

// Verification is recomputed on every broadcast and every listing.
type Verification struct {
	IsAdmin bool
	Reason  string
}

func Verified() Verification { return Verification{IsAdmin: true} }

func NotVerified(reason string) Verification { return Verification{Reason: reason} }
