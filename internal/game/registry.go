package game

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Action kind discriminators, the strings the invocation API and the audit
// records use.
const (
	TypeResearchStart  = "research-start"
	TypeResearchFinish = "research-finish"
	TypeVyroba         = "vyroba"
	TypeWithdraw       = "withdraw"
	TypeTrade          = "trade"
	TypeFeed           = "feed"
	TypeArmyDeploy     = "army-deploy"
	TypeArmyArrival    = "army-arrival"
	TypeArmyRetreat    = "army-retreat"
	TypeArmyUpgrade    = "army-upgrade"
	TypeRenameArmy     = "rename-army"
	TypeBuild          = "build"
	TypeBuildRoad      = "build-road"
	TypeRepair         = "repair"
	TypeIslandDiscover = "island-discover"
	TypeIslandExplore  = "island-explore"
	TypeIslandColonize = "island-colonize"
	TypeIslandAttack   = "island-attack"
	TypeIslandShare    = "island-share"
	TypeIslandTransfer = "island-transfer"
	TypeTaskStart      = "task-start"
	TypeTaskFinish     = "task-finish"
	TypeAddSticker     = "add-sticker"
	TypeGodMode        = "god-mode"
	TypeNextTurn       = "next-turn"
)

var supportedActionTypes = []string{
	TypeResearchStart,
	TypeResearchFinish,
	TypeVyroba,
	TypeWithdraw,
	TypeTrade,
	TypeFeed,
	TypeArmyDeploy,
	TypeArmyArrival,
	TypeArmyRetreat,
	TypeArmyUpgrade,
	TypeRenameArmy,
	TypeBuild,
	TypeBuildRoad,
	TypeRepair,
	TypeIslandDiscover,
	TypeIslandExplore,
	TypeIslandColonize,
	TypeIslandAttack,
	TypeIslandShare,
	TypeIslandTransfer,
	TypeTaskStart,
	TypeTaskFinish,
	TypeAddSticker,
	TypeGodMode,
	TypeNextTurn,
}

type constructor func(raw json.RawMessage) (Action, error)

var actionRegistry = map[string]constructor{
	TypeResearchStart:  decodeInto[*ResearchStartAction],
	TypeResearchFinish: decodeInto[*ResearchFinishAction],
	TypeVyroba:         decodeInto[*VyrobaAction],
	TypeWithdraw:       decodeInto[*WithdrawAction],
	TypeTrade:          decodeInto[*TradeAction],
	TypeFeed:           decodeInto[*FeedAction],
	TypeArmyDeploy:     decodeInto[*ArmyDeployAction],
	TypeArmyArrival:    decodeInto[*ArmyArrivalAction],
	TypeArmyRetreat:    decodeInto[*ArmyRetreatAction],
	TypeArmyUpgrade:    decodeInto[*ArmyUpgradeAction],
	TypeRenameArmy:     decodeInto[*RenameArmyAction],
	TypeBuild:          decodeInto[*BuildAction],
	TypeBuildRoad:      decodeInto[*BuildRoadAction],
	TypeRepair:         decodeInto[*RepairAction],
	TypeIslandDiscover: decodeInto[*IslandDiscoverAction],
	TypeIslandExplore:  decodeInto[*IslandExploreAction],
	TypeIslandColonize: decodeInto[*IslandColonizeAction],
	TypeIslandAttack:   decodeInto[*IslandAttackAction],
	TypeIslandShare:    decodeInto[*IslandShareAction],
	TypeIslandTransfer: decodeInto[*IslandTransferAction],
	TypeTaskStart:      decodeInto[*TaskStartAction],
	TypeTaskFinish:     decodeInto[*TaskFinishAction],
	TypeAddSticker:     decodeInto[*AddStickerAction],
	TypeGodMode:        decodeInto[*GodModeAction],
	TypeNextTurn:       decodeInto[*NextTurnAction],
}

func decodeInto[T Action](raw json.RawMessage) (Action, error) {
	var a T
	if err := decodeArgs(raw, &a); err != nil {
		return a, err
	}
	return a, nil
}

// decodeArgs is strict: unknown argument fields are rejected with an error
// naming the field.
func decodeArgs(raw json.RawMessage, into any) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(into); err != nil {
		return failf("invalid action arguments: %v", err)
	}
	return nil
}

// Construct builds a typed action from its discriminator and raw arguments.
func Construct(actionType string, raw json.RawMessage) (Action, error) {
	ctor, ok := actionRegistry[actionType]
	if !ok {
		return nil, failf("unknown action type %q", actionType)
	}
	return ctor(raw)
}

// SupportedActionTypes returns the registry keys, sorted.
func SupportedActionTypes() []string {
	out := append([]string(nil), supportedActionTypes...)
	sort.Strings(out)
	return out
}

// ValidateRegistry checks the constructor map against the supported-kinds
// list. Called once at startup.
func ValidateRegistry() error {
	allowed := make(map[string]struct{}, len(supportedActionTypes))
	for _, k := range supportedActionTypes {
		if k == "" {
			return fmt.Errorf("actionRegistry: empty supported key")
		}
		if _, ok := allowed[k]; ok {
			return fmt.Errorf("actionRegistry: duplicate supported key %q", k)
		}
		allowed[k] = struct{}{}
	}
	if len(actionRegistry) != len(allowed) {
		return fmt.Errorf("actionRegistry size mismatch: got=%d want=%d", len(actionRegistry), len(allowed))
	}
	for k := range actionRegistry {
		if _, ok := allowed[k]; !ok {
			return fmt.Errorf("actionRegistry has unsupported key %q", k)
		}
	}
	for k := range allowed {
		if _, ok := actionRegistry[k]; !ok {
			return fmt.Errorf("actionRegistry missing key %q", k)
		}
	}
	return nil
}
