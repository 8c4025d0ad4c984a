// Package groups implements the organizational hierarchy: plate-based
// ancestor checks, ambit resolution, and permission lookups.
package groups

import (
	"errors"
	"fmt"
	"strings"

	"github.com/AjuntamentdeBarcelona/iris-sub001/internal/models"
	"gorm.io/gorm"
)

// Permission codes consumed by the engine.
const (
	// PermOutAmbitValidation lets a group see similar records owned outside
	// its own ambit.
	PermOutAmbitValidation = "record.validate.outambit"
	// PermCoordinatorValidationDays extends the staleness window for
	// coordinator-level groups.
	PermCoordinatorValidationDays = "record.validate.coordinator_days"
	// PermAnswerAsCoordinator marks ambit-coordinator groups allowed to
	// answer records escalated by the deadline tracker.
	PermAnswerAsCoordinator = "record.answer.coordinator"
)

// ErrGroupNotFound is returned when a referenced group does not exist or is disabled.
var ErrGroupNotFound = errors.New("groups: group not found")

// IsAncestor reports whether ancestor sits strictly above descendant in the
// tree. A child's plate always strictly extends its parent's, so this is a
// prefix comparison.
func IsAncestor(ancestor, descendant *models.Group) bool {
	if ancestor == nil || descendant == nil {
		return false
	}
	if ancestor.ID == descendant.ID {
		return false
	}
	return strings.HasPrefix(descendant.Plate, ancestor.Plate)
}

// Manages reports whether group a is responsible for group b: either the
// same group or an ancestor of it.
func Manages(a, b *models.Group) bool {
	if a == nil || b == nil {
		return false
	}
	return a.ID == b.ID || IsAncestor(a, b)
}

// Get loads an enabled group by id.
func Get(db *gorm.DB, groupID uint) (*models.Group, error) {
	var g models.Group
	err := db.Where("id = ? AND enabled = ?", groupID, true).First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrGroupNotFound, groupID)
	}
	if err != nil {
		return nil, fmt.Errorf("groups: get %d: %w", groupID, err)
	}
	return &g, nil
}

// AmbitRoot returns the nearest ambit group at or above the given group:
// the enabled ambit group with the longest plate prefixing the group's
// plate. Returns nil when no ambit encloses the group.
func AmbitRoot(db *gorm.DB, group *models.Group) (*models.Group, error) {
	if group == nil {
		return nil, fmt.Errorf("groups: group is required")
	}
	if group.IsAmbit {
		return group, nil
	}

	var ambits []models.Group
	if err := db.Where("is_ambit = ? AND enabled = ?", true, true).
		Find(&ambits).Error; err != nil {
		return nil, fmt.Errorf("groups: ambit root for %d: %w", group.ID, err)
	}

	var root *models.Group
	for i := range ambits {
		a := &ambits[i]
		if !strings.HasPrefix(group.Plate, a.Plate) {
			continue
		}
		if root == nil || len(a.Plate) > len(root.Plate) {
			root = a
		}
	}
	return root, nil
}

// SameAmbit reports whether two groups belong to the same ambit sub-tree.
// Groups with no enclosing ambit are only in the same ambit as themselves.
func SameAmbit(db *gorm.DB, a, b *models.Group) (bool, error) {
	if a == nil || b == nil {
		return false, fmt.Errorf("groups: both groups are required")
	}
	if a.ID == b.ID {
		return true, nil
	}
	rootA, err := AmbitRoot(db, a)
	if err != nil {
		return false, err
	}
	rootB, err := AmbitRoot(db, b)
	if err != nil {
		return false, err
	}
	if rootA == nil || rootB == nil {
		return false, nil
	}
	return rootA.ID == rootB.ID, nil
}

// Descendants returns every enabled group whose plate extends the given
// group's plate, the group itself excluded.
func Descendants(db *gorm.DB, group *models.Group) ([]models.Group, error) {
	if group == nil {
		return nil, fmt.Errorf("groups: group is required")
	}
	var out []models.Group
	if err := db.Where("plate LIKE ? AND id != ? AND enabled = ?",
		group.Plate+"%", group.ID, true).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("groups: descendants of %d: %w", group.ID, err)
	}
	return out, nil
}

// Checker answers permission queries for groups. The engine consumes this
// interface; Permissions is the DB-backed implementation.
type Checker interface {
	HasPermission(groupID uint, code string) bool
}

// Permissions is a Checker backed by group_permissions rows.
type Permissions struct {
	DB *gorm.DB
}

// HasPermission reports whether the group holds the permission code.
// Lookup errors count as "no permission".
func (p Permissions) HasPermission(groupID uint, code string) bool {
	var n int64
	if err := p.DB.Model(&models.GroupPermission{}).
		Where("group_id = ? AND code = ?", groupID, code).
		Count(&n).Error; err != nil {
		return false
	}
	return n > 0
}
