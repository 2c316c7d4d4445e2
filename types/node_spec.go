package types

// NodeKind identifies which family of worker a NodeSpec describes.
type NodeKind string

const (
	KindStart    NodeKind = "start"
	KindEnd      NodeKind = "end"
	KindActivity NodeKind = "activity"
	KindGateway  NodeKind = "gateway"
)

// ActivityType selects one of the four activity variants: service and
// script run inline, user and manual pause for an external completion.
type ActivityType string

const (
	ActivityService ActivityType = "service"
	ActivityUser    ActivityType = "user"
	ActivityManual  ActivityType = "manual"
	ActivityScript  ActivityType = "script"
)

// GatewayType selects the routing rule a Gateway worker applies.
type GatewayType string

const (
	GatewayExclusive GatewayType = "exclusive"
	GatewayParallel  GatewayType = "parallel"
	GatewayInclusive GatewayType = "inclusive"
)

// FormField describes one field of a user task's form, surfaced to callers
// through Activity.Snapshot. The engine's ListWaiting entries do not carry
// form fields.
type FormField struct {
	Name     string `json:"name"`
	Label    string `json:"label"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

// NodeSpec is the static description of one vertex in a process graph.
type NodeSpec struct {
	ID   string
	Kind NodeKind
	Name string

	// NextNodes is ordered; order defines tie-breaks for exclusive gateways
	// and declaration order for parallel/inclusive fan-out.
	NextNodes []string

	// Activity fields (Kind == KindActivity).
	ActivityType ActivityType
	WorkFnName   string // registry.CallableRegistry lookup key for "service"
	Script       string // expr-lang script body for "script"
	FormFields   []FormField

	// Gateway fields (Kind == KindGateway).
	GatewayType     GatewayType
	ConditionFnName string            // registry.CallableRegistry lookup key, evaluated per candidate
	Conditions      map[string]string // nextNodeID -> expr-lang boolean expression

	Metadata map[string]interface{}
}
