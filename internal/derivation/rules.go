// Package derivation decides which group becomes responsible for a record,
// combining direct, district, and polygon rule sets with fixed precedence.
package derivation

import (
	"errors"
	"fmt"

	"github.com/AjuntamentdeBarcelona/iris-sub001/internal/models"
	"gorm.io/gorm"
)

// Rule is one derivation rule. The three kinds share a match predicate and
// are evaluated in precedence order: direct, then district, then polygon.
type Rule interface {
	// Matches reports whether the rule applies to the target state and
	// ubication.
	Matches(targetState int, ub *models.Ubication) bool
	// GroupID is the group the rule routes to.
	GroupID() uint
}

// DirectRule routes a target state unconditionally.
type DirectRule struct {
	State int
	Group uint
}

func (r DirectRule) Matches(targetState int, _ *models.Ubication) bool {
	return targetState == r.State
}

func (r DirectRule) GroupID() uint { return r.Group }

// DistrictRule routes a target state for records located in one district.
type DistrictRule struct {
	State    int
	District uint
	Group    uint
}

func (r DistrictRule) Matches(targetState int, ub *models.Ubication) bool {
	if targetState != r.State {
		return false
	}
	return ub != nil && ub.DistrictID != nil && *ub.DistrictID == r.District
}

func (r DistrictRule) GroupID() uint { return r.Group }

// PolygonRule routes a target state by zone and polygon code. District-mode
// rules additionally require the ubication's district to match.
type PolygonRule struct {
	State        int
	Zone         string
	PolygonCode  string
	DistrictMode bool
	District     *uint
	Group        uint
}

func (r PolygonRule) Matches(targetState int, ub *models.Ubication) bool {
	if targetState != r.State || ub == nil {
		return false
	}
	if ub.Zone != r.Zone || ub.PolygonCode != r.PolygonCode {
		return false
	}
	if r.DistrictMode {
		if r.District == nil || ub.DistrictID == nil {
			return false
		}
		return *ub.DistrictID == *r.District
	}
	return true
}

func (r PolygonRule) GroupID() uint { return r.Group }

// rulesForTheme loads the enabled derivation rows for a theme and state, in
// precedence order.
func rulesForTheme(db *gorm.DB, themeID uint, targetState int) ([]Rule, error) {
	var rules []Rule

	var directs []models.DerivationDirect
	if err := db.Where("element_detail_id = ? AND record_state = ? AND enabled = ?",
		themeID, targetState, true).Order("id ASC").Find(&directs).Error; err != nil {
		return nil, fmt.Errorf("derivation: load direct rules: %w", err)
	}
	for _, d := range directs {
		rules = append(rules, DirectRule{State: d.RecordState, Group: d.GroupID})
	}

	var districts []models.DerivationDistrict
	if err := db.Where("element_detail_id = ? AND record_state = ? AND enabled = ?",
		themeID, targetState, true).Order("id ASC").Find(&districts).Error; err != nil {
		return nil, fmt.Errorf("derivation: load district rules: %w", err)
	}
	for _, d := range districts {
		rules = append(rules, DistrictRule{State: d.RecordState, District: d.DistrictID, Group: d.GroupID})
	}

	var polygons []models.DerivationPolygon
	if err := db.Where("element_detail_id = ? AND record_state = ? AND enabled = ?",
		themeID, targetState, true).Order("id ASC").Find(&polygons).Error; err != nil {
		return nil, fmt.Errorf("derivation: load polygon rules: %w", err)
	}
	for _, p := range polygons {
		rules = append(rules, PolygonRule{
			State:        p.RecordState,
			Zone:         p.Zone,
			PolygonCode:  p.PolygonCode,
			DistrictMode: p.DistrictMode,
			District:     p.DistrictID,
			Group:        p.GroupID,
		})
	}

	return rules, nil
}

// Resolve returns the group responsible for a theme and target state at the
// given ubication. The first matching rule in precedence order wins; found is
// false when no rule matches, and the caller keeps the current responsible
// group unchanged.
func Resolve(db *gorm.DB, themeID uint, targetState int, ub *models.Ubication) (*models.Group, bool, error) {
	if db == nil {
		return nil, false, fmt.Errorf("derivation: db is required")
	}

	rules, err := rulesForTheme(db, themeID, targetState)
	if err != nil {
		return nil, false, err
	}

	for _, rule := range rules {
		if !rule.Matches(targetState, ub) {
			continue
		}
		var g models.Group
		err := db.Where("id = ? AND enabled = ?", rule.GroupID(), true).First(&g).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Rule points at a disabled group; fall through to the next rule.
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("derivation: load group %d: %w", rule.GroupID(), err)
		}
		return &g, true, nil
	}
	return nil, false, nil
}

// CheckDistrictDerivations verifies the district coverage invariant for a
// theme: for every state that has district rules, every derivation-eligible
// district must be covered. Returns one error per violated state, joined.
func CheckDistrictDerivations(db *gorm.DB, themeID uint) error {
	var eligible []models.District
	if err := db.Where("allows_derivation = ? AND enabled = ?", true, true).
		Find(&eligible).Error; err != nil {
		return fmt.Errorf("derivation: load districts: %w", err)
	}

	var rows []models.DerivationDistrict
	if err := db.Where("element_detail_id = ? AND enabled = ?", themeID, true).
		Find(&rows).Error; err != nil {
		return fmt.Errorf("derivation: load district rules: %w", err)
	}

	covered := map[int]map[uint]bool{}
	for _, r := range rows {
		if covered[r.RecordState] == nil {
			covered[r.RecordState] = map[uint]bool{}
		}
		covered[r.RecordState][r.DistrictID] = true
	}

	for state, districts := range covered {
		for _, d := range eligible {
			if !districts[d.ID] {
				return fmt.Errorf("derivation: theme %d state %d: district %q not covered",
					themeID, state, d.Name)
			}
		}
	}
	return nil
}
