package confirmation

import "fmt"

// Kind 确认判定类型
type Kind int

const (
	Unconfirmed Kind = iota // 未打包，或节点高度落后于交易区块
	Confirming              // 已打包但深度不足
	Finalized               // 达到所需确认数
)

func (k Kind) String() string {
	switch k {
	case Unconfirmed:
		return "Unconfirmed"
	case Confirming:
		return "Confirming"
	case Finalized:
		return "Finalized"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Verdict 确认判定结果
type Verdict struct {
	Kind  Kind
	Depth uint64
}

func (v Verdict) String() string {
	if v.Kind == Unconfirmed {
		return v.Kind.String()
	}
	return fmt.Sprintf("%s(%d)", v.Kind, v.Depth)
}

// Policy 确认深度策略，无内部状态，可并发使用
type Policy struct {
	Required       uint64 // 所需确认数，至少为 1
	FinalityWindow uint64 // 已入账交易继续复核重组的区块数
}

// New 创建策略，required 为 0 时按 1 处理
func New(required, finalityWindow uint64) Policy {
	if required == 0 {
		required = 1
	}
	return Policy{Required: required, FinalityWindow: finalityWindow}
}

// Classify 依据当前高度判定交易确认状态
// depth = currentHeight - txBlock
func (p Policy) Classify(currentHeight uint64, txBlock *uint64) Verdict {
	if txBlock == nil || currentHeight < *txBlock {
		return Verdict{Kind: Unconfirmed}
	}
	depth := currentHeight - *txBlock
	if depth >= p.required() {
		return Verdict{Kind: Finalized, Depth: depth}
	}
	return Verdict{Kind: Confirming, Depth: depth}
}

// WithinReorgWindow 已入账交易是否仍需复核
func (p Policy) WithinReorgWindow(currentHeight uint64, txBlock *uint64) bool {
	if txBlock == nil || currentHeight < *txBlock {
		return true
	}
	return currentHeight-*txBlock <= p.required()+p.FinalityWindow
}

func (p Policy) required() uint64 {
	if p.Required == 0 {
		return 1
	}
	return p.Required
}
