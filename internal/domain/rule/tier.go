package rule

// Tier identifies the trust level of a rule's configuration source.
// Higher tiers always outrank lower ones: the intra-tier contribution to the
// composite priority is declared/1000, and the maximum 999/1000 is strictly
// less than one tier step.
type Tier int

const (
	// TierDefault holds the built-in rules shipped with the engine.
	TierDefault Tier = 1
	// TierExtension holds rules contributed by installed extensions.
	TierExtension Tier = 2
	// TierWorkspace holds rules from the current workspace.
	TierWorkspace Tier = 3
	// TierUser holds rules from the user's own configuration.
	TierUser Tier = 4
	// TierAdmin holds administrator-provided rules and outranks everything.
	TierAdmin Tier = 5
)

// MaxDeclaredPriority is the largest intra-tier priority an author may declare.
const MaxDeclaredPriority = 999

// Label returns the human-readable tier name used in rule provenance strings.
func (t Tier) Label() string {
	switch t {
	case TierDefault:
		return "Default"
	case TierExtension:
		return "Extension"
	case TierWorkspace:
		return "Workspace"
	case TierUser:
		return "User"
	case TierAdmin:
		return "Admin"
	default:
		return "Unknown"
	}
}

// ComposePriority combines a trust tier with an author-declared priority into
// the single ordering key the engine ranks rules by.
func ComposePriority(tier Tier, declared int) float64 {
	return float64(tier) + float64(declared)/1000
}
