package validator

import (
	"context"
	"fmt"
	"strings"

	"github.com/livebydesign2/supa-seed-sub002/pkg/models"
)

// PersonalAccountHandler enforces the named business rule that a personal
// account must not carry an organization reference
type PersonalAccountHandler struct {
	FlagColumn string
	OrgColumn  string
}

// NewPersonalAccountHandler creates the handler with the conventional
// column names
func NewPersonalAccountHandler() *PersonalAccountHandler {
	return &PersonalAccountHandler{
		FlagColumn: "is_personal_account",
		OrgColumn:  "organization_id",
	}
}

// Matches reports whether this handler covers the constraint
func (h *PersonalAccountHandler) Matches(constraint models.Constraint) bool {
	name := strings.ToLower(constraint.Name)
	expr := strings.ToLower(constraint.CheckExpression)
	return strings.Contains(name, "personal_account") ||
		(strings.Contains(expr, h.FlagColumn) && strings.Contains(expr, h.OrgColumn))
}

// Apply checks the rule against the candidate record
func (h *PersonalAccountHandler) Apply(_ context.Context, constraint models.Constraint, op *OperationContext) RuleOutcome {
	personal, ok := asBool(op.Record[h.FlagColumn])
	if !ok || !personal {
		return RuleOutcome{Valid: true}
	}
	if isEmpty(op.Record[h.OrgColumn]) {
		return RuleOutcome{Valid: true}
	}
	return RuleOutcome{
		Valid:   false,
		Message: fmt.Sprintf("personal account must not have %s set (constraint %s)", h.OrgColumn, constraint.Name),
		Fix: &models.AutoFix{
			Rule:          constraint.Name,
			Field:         h.OrgColumn,
			OriginalValue: op.Record[h.OrgColumn],
			FixedValue:    nil,
			Strategy:      models.SkipField,
		},
	}
}

func asBool(value interface{}) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case int:
		return v != 0, true
	case int64:
		return v != 0, true
	case string:
		return v == "true" || v == "t" || v == "1", true
	default:
		return false, false
	}
}
