package groups

import (
	"testing"

	"github.com/AjuntamentdeBarcelona/iris-sub001/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.Group{}, &models.GroupPermission{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

// seedTree creates a small hierarchy:
//
//	root (plate "01", ambit)
//	├── parks (plate "0102", ambit)
//	│   └── parks-north (plate "010201")
//	└── roads (plate "0103")
func seedTree(t *testing.T, db *gorm.DB) map[string]*models.Group {
	t.Helper()
	out := map[string]*models.Group{}
	create := func(name, plate string, parent *models.Group, isAmbit bool) *models.Group {
		g := &models.Group{Name: name, Plate: plate, IsAmbit: isAmbit, Enabled: true}
		if parent != nil {
			g.ParentID = &parent.ID
		}
		if err := db.Create(g).Error; err != nil {
			t.Fatalf("create group %s: %v", name, err)
		}
		out[name] = g
		return g
	}
	root := create("root", "01", nil, true)
	parks := create("parks", "0102", root, true)
	create("parks-north", "010201", parks, false)
	create("roads", "0103", root, false)
	return out
}

func TestIsAncestor(t *testing.T) {
	db := openTestDB(t)
	g := seedTree(t, db)

	if !IsAncestor(g["root"], g["parks-north"]) {
		t.Error("root should be ancestor of parks-north")
	}
	if !IsAncestor(g["parks"], g["parks-north"]) {
		t.Error("parks should be ancestor of parks-north")
	}
	if IsAncestor(g["parks-north"], g["parks"]) {
		t.Error("child must not be ancestor of its parent")
	}
	if IsAncestor(g["roads"], g["parks-north"]) {
		t.Error("sibling branches must not be ancestors")
	}
	if IsAncestor(g["parks"], g["parks"]) {
		t.Error("a group is not its own ancestor")
	}
}

func TestManages(t *testing.T) {
	db := openTestDB(t)
	g := seedTree(t, db)

	if !Manages(g["parks"], g["parks"]) {
		t.Error("a group manages itself")
	}
	if !Manages(g["root"], g["roads"]) {
		t.Error("root manages roads")
	}
	if Manages(g["roads"], g["root"]) {
		t.Error("roads must not manage root")
	}
}

func TestAmbitRoot(t *testing.T) {
	db := openTestDB(t)
	g := seedTree(t, db)

	root, err := AmbitRoot(db, g["parks-north"])
	if err != nil {
		t.Fatalf("AmbitRoot: %v", err)
	}
	if root == nil || root.ID != g["parks"].ID {
		t.Errorf("ambit of parks-north = %v, want parks", root)
	}

	// roads has no ambit parent other than root.
	root, err = AmbitRoot(db, g["roads"])
	if err != nil {
		t.Fatalf("AmbitRoot: %v", err)
	}
	if root == nil || root.ID != g["root"].ID {
		t.Errorf("ambit of roads = %v, want root", root)
	}

	// An ambit group is its own root.
	root, err = AmbitRoot(db, g["parks"])
	if err != nil {
		t.Fatalf("AmbitRoot: %v", err)
	}
	if root.ID != g["parks"].ID {
		t.Errorf("ambit of parks = %d, want itself", root.ID)
	}
}

func TestSameAmbit(t *testing.T) {
	db := openTestDB(t)
	g := seedTree(t, db)

	same, err := SameAmbit(db, g["parks"], g["parks-north"])
	if err != nil {
		t.Fatalf("SameAmbit: %v", err)
	}
	if !same {
		t.Error("parks and parks-north share an ambit")
	}

	same, err = SameAmbit(db, g["parks-north"], g["roads"])
	if err != nil {
		t.Fatalf("SameAmbit: %v", err)
	}
	if same {
		t.Error("parks-north and roads are in different ambits")
	}
}

func TestDescendants(t *testing.T) {
	db := openTestDB(t)
	g := seedTree(t, db)

	desc, err := Descendants(db, g["root"])
	if err != nil {
		t.Fatalf("Descendants: %v", err)
	}
	if len(desc) != 3 {
		t.Errorf("root descendants = %d, want 3", len(desc))
	}

	desc, err = Descendants(db, g["parks"])
	if err != nil {
		t.Fatalf("Descendants: %v", err)
	}
	if len(desc) != 1 || desc[0].Name != "parks-north" {
		t.Errorf("parks descendants = %v, want [parks-north]", desc)
	}
}

func TestPermissions_HasPermission(t *testing.T) {
	db := openTestDB(t)
	g := seedTree(t, db)

	if err := db.Create(&models.GroupPermission{
		GroupID: g["parks"].ID,
		Code:    PermOutAmbitValidation,
	}).Error; err != nil {
		t.Fatalf("create permission: %v", err)
	}

	checker := Permissions{DB: db}
	if !checker.HasPermission(g["parks"].ID, PermOutAmbitValidation) {
		t.Error("parks should hold the out-ambit permission")
	}
	if checker.HasPermission(g["roads"].ID, PermOutAmbitValidation) {
		t.Error("roads should not hold the out-ambit permission")
	}
	if checker.HasPermission(g["parks"].ID, PermCoordinatorValidationDays) {
		t.Error("parks should not hold the coordinator-days permission")
	}
}

func TestGet_DisabledGroup(t *testing.T) {
	db := openTestDB(t)
	g := &models.Group{Name: "old", Plate: "0199", Enabled: true}
	if err := db.Create(g).Error; err != nil {
		t.Fatalf("create group: %v", err)
	}
	if err := db.Model(g).Update("enabled", false).Error; err != nil {
		t.Fatalf("disable group: %v", err)
	}
	if _, err := Get(db, g.ID); err == nil {
		t.Error("expected error for disabled group")
	}
}
