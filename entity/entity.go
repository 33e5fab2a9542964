package entity

// Clan carries the cache-relevant state of a clan. Members are not
// embedded; allies, rivals and ranks travel in their packed string forms
// and are resolved by the host application when needed.
type Clan struct {
	Tag          string `json:"tag"`
	ColorTag     string `json:"colorTag"`
	Name         string `json:"name"`
	Verified     bool   `json:"verified"`
	FriendlyFire bool   `json:"friendlyFire"`
	Description  string `json:"description"`

	Balance          float64 `json:"balance"`
	MemberFee        float64 `json:"fee"`
	MemberFeeEnabled bool    `json:"feeEnabled"`

	Founded  int64 `json:"founded"`
	LastUsed int64 `json:"lastUsed"`

	PackedAllies string `json:"packedAllies"`
	PackedRivals string `json:"packedRivals"`
	Flags        string `json:"flags"`
	RanksJSON    string `json:"ranksJson"`
}

// ClanPlayer carries the cache-relevant state of a single player. The
// clan association is a tag reference only.
type ClanPlayer struct {
	UUID   string `json:"uuid"`
	Name   string `json:"name"`
	Tag    string `json:"tag"`
	Leader bool   `json:"leader"`

	TrustedState bool   `json:"trusted"`
	Channel      string `json:"channel"`

	Rivals    int `json:"rivalKills"`
	Neutrals  int `json:"neutralKills"`
	Civilians int `json:"civilianKills"`
	Deaths    int `json:"deaths"`

	JoinDate int64 `json:"joinDate"`
	LastSeen int64 `json:"lastSeen"`

	Flags  string `json:"flags"`
	Locale string `json:"locale"`
}

// Resolver is the narrow surface the host application exposes so the
// coordination layer can turn identifiers from the wire back into live
// entities. Implementations are only consulted from the application's
// single-threaded execution context.
type Resolver interface {
	// ClanByTag resolves a clan by its (case-insensitive) tag.
	ClanByTag(tag string) (*Clan, bool)

	// PlayerByUUID resolves a clan player by their uuid.
	PlayerByUUID(id string) (*ClanPlayer, bool)
}
