package engine

// Faction ids as reported by ESI /corporations/{id}/ faction_id.
const (
	FactionCaldariState     int32 = 500001
	FactionMinmatarRepublic int32 = 500002
	FactionAmarrEmpire      int32 = 500003
	FactionGallenteFed      int32 = 500004
	FactionAmmatarMandate   int32 = 500007
	FactionKhanidKingdom    int32 = 500008
	FactionGuristas         int32 = 500010
	FactionAngelCartel      int32 = 500011
	FactionBloodRaiders     int32 = 500012
	FactionSanshasNation    int32 = 500019
	FactionSerpentis        int32 = 500020
	FactionTriglavian       int32 = 500026
)

// militiaCorps are the factional warfare corporations; their LP has no CONCORD conversion.
var militiaCorps = map[int32]bool{
	1000179: true, // 24th Imperial Crusade
	1000180: true, // State Protectorate
	1000181: true, // Federal Defense Union
	1000182: true, // Tribal Liberation Force
}

// TierFor classifies an NPC corporation by its faction.
func TierFor(corpID, factionID int32) Tier {
	if militiaCorps[corpID] {
		return TierPirate
	}
	switch factionID {
	case FactionCaldariState, FactionMinmatarRepublic, FactionAmarrEmpire,
		FactionGallenteFed, FactionAmmatarMandate, FactionKhanidKingdom:
		return TierEmpire
	case FactionGuristas, FactionAngelCartel, FactionBloodRaiders,
		FactionSanshasNation, FactionSerpentis, FactionTriglavian:
		return TierPirate
	default:
		return TierIndependent
	}
}
