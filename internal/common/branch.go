package common

// BranchType classifies a retired control-flow instruction.
type BranchType uint8

const (
	Conditional BranchType = iota
	DirectJump
	IndirectJump
	Call
	Return
)

func (t BranchType) String() string {
	switch t {
	case Conditional:
		return "conditional"
	case DirectJump:
		return "jump"
	case IndirectJump:
		return "indirect"
	case Call:
		return "call"
	case Return:
		return "return"
	default:
		return "unknown"
	}
}

// Branch describes a retired branch instance handed to a predictor update.
type Branch struct {
	PC     uint64
	Target uint64
	Type   BranchType
}

// IsConditional reports whether the branch carries a direction to learn.
func (b Branch) IsConditional() bool {
	return b.Type == Conditional
}

// CondBranch is shorthand for a conditional branch record.
func CondBranch(pc, target uint64) Branch {
	return Branch{PC: pc, Target: target, Type: Conditional}
}
