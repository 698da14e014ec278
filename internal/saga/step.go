package saga

// Kind 枚举了编排器支持的全部操作类型。该枚举是封闭的，
// 新增操作必须同时扩展调度器的 switch 分支。
type Kind string

const (
	KindMintToken         Kind = "MINT_TOKEN"
	KindCreateSocialGroup Kind = "CREATE_SOCIAL_GROUP"
	KindCreateMarket      Kind = "CREATE_MARKET"
	KindCreateAMMPool     Kind = "CREATE_AMM_POOL"
	KindCheckAllowance    Kind = "CHECK_ALLOWANCE"
	KindApproveAllowance  Kind = "APPROVE_ALLOWANCE"
	KindExecuteSwap       Kind = "EXECUTE_SWAP"
)

// knownKinds 用于在构建阶段校验步骤类型。
var knownKinds = map[Kind]struct{}{
	KindMintToken:         {},
	KindCreateSocialGroup: {},
	KindCreateMarket:      {},
	KindCreateAMMPool:     {},
	KindCheckAllowance:    {},
	KindApproveAllowance:  {},
	KindExecuteSwap:       {},
}

// Criticality 决定步骤失败时整个工作流的走向。
type Criticality string

const (
	// CriticalityRequired 表示失败后中止所有后续步骤。
	CriticalityRequired Criticality = "REQUIRED"
	// CriticalityBestEffort 表示失败后继续执行后续步骤。
	CriticalityBestEffort Criticality = "BEST_EFFORT"
)

// StepStatus 描述单个步骤的生命周期状态。
type StepStatus string

const (
	StepStatusPending   StepStatus = "PENDING"
	StepStatusRunning   StepStatus = "RUNNING"
	StepStatusSucceeded StepStatus = "SUCCEEDED"
	StepStatusFailed    StepStatus = "FAILED"
)

// Binding 描述步骤输入的取值来源：要么是字面量，
// 要么引用某个先前步骤输出中的字段。
type Binding struct {
	Literal  any
	FromStep string
	Field    string
}

// Literal 构造字面量绑定。
func Literal(value any) Binding {
	return Binding{Literal: value}
}

// FromOutput 构造引用先前步骤输出字段的绑定。
func FromOutput(stepID, field string) Binding {
	return Binding{FromStep: stepID, Field: field}
}

// IsRef 判断该绑定是否为输出引用。
func (b Binding) IsRef() bool {
	return b.FromStep != ""
}

// Condition 在步骤即将执行时基于先前成功步骤的输出求值，
// 返回 false 时该步骤被跳过。
type Condition func(outputs Outputs) bool

// Outputs 汇集已成功步骤的输出，按步骤 ID 索引。
type Outputs map[string]map[string]any

// Field 读取指定步骤输出中的字段。第二个返回值表示
// 步骤是否成功且字段存在。
func (o Outputs) Field(stepID, field string) (any, bool) {
	out, ok := o[stepID]
	if !ok {
		return nil, false
	}
	value, ok := out[field]
	return value, ok
}

// Step 是工作流中的一个执行单元。
type Step struct {
	ID          string
	Kind        Kind
	Criticality Criticality
	Inputs      map[string]Binding
	OnlyIf      Condition
	Description string

	Status StepStatus
	Output map[string]any
	Err    error
}
