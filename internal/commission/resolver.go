// Package commission selects the commission rule that applies to a sale and
// computes the marketplace fee.
package commission

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/vehicle-marketplace/internal/models"
)

var (
	ErrInvalidPrice = errors.New("price must not be negative")
	ErrInvalidRule  = errors.New("invalid commission rule")
)

// DefaultFallbackRate is charged, in percent, when no rule applies.
var DefaultFallbackRate = decimal.NewFromInt(5)

var hundred = decimal.NewFromInt(100)

// Breakdown is the fee charged for one sale.
type Breakdown struct {
	Amount     decimal.Decimal `json:"amount"`
	Percentage decimal.Decimal `json:"percentage"`
	RuleID     *string         `json:"rule_id,omitempty"`
	RuleName   string          `json:"rule_name,omitempty"`
}

// IsFallback reports whether no configured rule applied.
func (b Breakdown) IsFallback() bool {
	return b.RuleID == nil
}

// Net returns price minus the commission amount.
func (b Breakdown) Net(price decimal.Decimal) decimal.Decimal {
	return price.Sub(b.Amount)
}

// RoleConstraint decides whether a rule admits a seller role.
type RoleConstraint interface {
	Admits(role *models.Role) bool
}

// AnyRole admits every seller, including one without a role.
type AnyRole struct{}

func (AnyRole) Admits(*models.Role) bool { return true }

// OnlyRole admits a single seller role.
type OnlyRole struct {
	Role models.Role
}

func (c OnlyRole) Admits(role *models.Role) bool {
	return role != nil && *role == c.Role
}

// ConstraintOf returns the role constraint stored on a rule.
func ConstraintOf(rule models.CommissionRule) RoleConstraint {
	if rule.Role == nil || *rule.Role == "" {
		return AnyRole{}
	}
	return OnlyRole{Role: *rule.Role}
}

// Applies reports whether an active rule matches the price and seller role.
// Price bounds are inclusive.
func Applies(rule models.CommissionRule, price decimal.Decimal, role *models.Role) bool {
	if !rule.IsActive {
		return false
	}
	if rule.MinPrice != nil && price.LessThan(*rule.MinPrice) {
		return false
	}
	if rule.MaxPrice != nil && price.GreaterThan(*rule.MaxPrice) {
		return false
	}
	return ConstraintOf(rule).Admits(role)
}

// Order returns a copy of rules sorted by priority descending, then by
// creation time ascending, then by id.
func Order(rules []models.CommissionRule) []models.CommissionRule {
	ordered := make([]models.CommissionRule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return ordered
}

// Select returns the winning rule, if any.
func Select(rules []models.CommissionRule, price decimal.Decimal, role *models.Role) (*models.CommissionRule, bool) {
	for _, rule := range Order(rules) {
		if Applies(rule, price, role) {
			winner := rule
			return &winner, true
		}
	}
	return nil, false
}

// Compute resolves the fee for price against rules. fallbackRate is the
// percentage used when nothing applies. Amount and percentage are rounded
// half-up to two decimals.
func Compute(rules []models.CommissionRule, price decimal.Decimal, role *models.Role, fallbackRate decimal.Decimal) (Breakdown, error) {
	if price.IsNegative() {
		return Breakdown{}, fmt.Errorf("%w: %s", ErrInvalidPrice, price)
	}

	rule, ok := Select(rules, price, role)
	if !ok {
		return Breakdown{
			Amount:     percentOf(price, fallbackRate),
			Percentage: fallbackRate.Round(2),
		}, nil
	}

	id := rule.ID
	b := Breakdown{RuleID: &id, RuleName: rule.Name}
	switch rule.Type {
	case models.CommissionFixed:
		b.Amount = rule.Value.Round(2)
		b.Percentage = backComputePercentage(b.Amount, price)
	default:
		b.Amount = percentOf(price, rule.Value)
		b.Percentage = rule.Value.Round(2)
	}
	return b, nil
}

func percentOf(price, rate decimal.Decimal) decimal.Decimal {
	return price.Mul(rate).Div(hundred).Round(2)
}

// backComputePercentage is 0 for a zero price.
func backComputePercentage(amount, price decimal.Decimal) decimal.Decimal {
	if price.IsZero() {
		return decimal.Zero
	}
	return amount.Div(price).Mul(hundred).Round(2)
}

// RuleSource loads the active commission rules.
type RuleSource interface {
	FindActiveRules(ctx context.Context) ([]models.CommissionRule, error)
}

// Resolver computes commissions against the stored rule set.
type Resolver struct {
	rules        RuleSource
	fallbackRate decimal.Decimal
}

// NewResolver creates a resolver. A negative fallback rate falls back to
// DefaultFallbackRate.
func NewResolver(rules RuleSource, fallbackRate decimal.Decimal) *Resolver {
	if fallbackRate.IsNegative() {
		fallbackRate = DefaultFallbackRate
	}
	return &Resolver{rules: rules, fallbackRate: fallbackRate}
}

// FallbackRate returns the percentage charged when no rule applies.
func (r *Resolver) FallbackRate() decimal.Decimal {
	return r.fallbackRate
}

// Resolve returns the fee for a sale at price by a seller with role.
func (r *Resolver) Resolve(ctx context.Context, price decimal.Decimal, role *models.Role) (Breakdown, error) {
	if price.IsNegative() {
		return Breakdown{}, fmt.Errorf("%w: %s", ErrInvalidPrice, price)
	}

	rules, err := r.rules.FindActiveRules(ctx)
	if err != nil {
		return Breakdown{}, fmt.Errorf("failed to load commission rules: %w", err)
	}

	b, err := Compute(rules, price, role, r.fallbackRate)
	if err != nil {
		return Breakdown{}, err
	}
	if b.IsFallback() {
		log.WithFields(log.Fields{
			"price":         price.String(),
			"fallback_rate": r.fallbackRate.String(),
		}).Debug("No commission rule applied, using fallback rate")
	}
	return b, nil
}

// ValidateRule checks a rule before it is stored.
func ValidateRule(rule models.CommissionRule) error {
	if rule.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRule)
	}
	switch rule.Type {
	case models.CommissionPercentage:
		if rule.Value.GreaterThan(hundred) {
			return fmt.Errorf("%w: percentage must not exceed 100", ErrInvalidRule)
		}
	case models.CommissionFixed:
	default:
		return fmt.Errorf("%w: type must be percentage or fixed", ErrInvalidRule)
	}
	if rule.Value.IsNegative() {
		return fmt.Errorf("%w: value must not be negative", ErrInvalidRule)
	}
	if rule.MinPrice != nil && rule.MinPrice.IsNegative() {
		return fmt.Errorf("%w: min_price must not be negative", ErrInvalidRule)
	}
	if rule.MinPrice != nil && rule.MaxPrice != nil && rule.MinPrice.GreaterThan(*rule.MaxPrice) {
		return fmt.Errorf("%w: min_price must not exceed max_price", ErrInvalidRule)
	}
	if rule.Role != nil && *rule.Role != "" && !models.IsValidRole(*rule.Role) {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidRule, *rule.Role)
	}
	return nil
}
