package reconcile

import (
	"go/parser"
	"go/token"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lofcz/minfold/internal/resolve"
	"github.com/lofcz/minfold/internal/schema"
	"github.com/lofcz/minfold/internal/source"
)

// usersTable models a typical table mid-drift: Email is new, Name changed
// nullability, LegacyCode was dropped from the database.
func usersTable(t *testing.T) *schema.Table {
	t.Helper()
	tbl := schema.NewTable("users")
	cols := []*schema.Column{
		{Name: "id", Ordinal: 1, Type: schema.TypeInt, Identity: true, PrimaryKey: true},
		{Name: "name", Ordinal: 2, Type: schema.TypeText, Nullable: true},
		{Name: "email", Ordinal: 3, Type: schema.TypeText},
		{Name: "status", Ordinal: 4, Type: schema.TypeSmallInt},
		{Name: "team_id", Ordinal: 5, Type: schema.TypeInt, ForeignKeys: []schema.ForeignKey{
			{Name: "fk_users_team", Table: "users", Column: "team_id", RefTable: "teams", RefColumn: "id", Enforced: true},
		}},
		{Name: "manager_id", Ordinal: 6, Type: schema.TypeInt, Nullable: true, ForeignKeys: []schema.ForeignKey{
			{Name: "fk_users_manager", Table: "users", Column: "manager_id", RefTable: "users", RefColumn: "id", Enforced: false},
		}},
		{Name: "created_at", Ordinal: 7, Type: schema.TypeTimestampTZ},
	}
	for _, c := range cols {
		require.True(t, tbl.AddColumn(c))
	}
	return tbl
}

const driftedUser = `package models

// User is generated from the users table.
type User struct {
	Id         int32
	Name       string ` + "`json:\"name\"`" + `
	Status     UserStatus
	TeamId     int32 ` + "`fk:\"Squad.Id\"`" + `
	ManagerId  *int32
	CreatedAt  time.Time
	LegacyCode string
	Secret     string ` + "`minfold:\"-\"`" + `
	// minfold:dynamic
	loaded bool
}

// NewUser builds a User from caller-supplied values.
func NewUser(teamId int32, name string, legacyCode string, managerId *int32) *User {
	m := &User{}
	m.TeamId = teamId
	m.Name = name
	m.LegacyCode = legacyCode
	m.ManagerId = managerId
	return m
}
`

func parseClass(t *testing.T, src, name string) *source.ClassModel {
	t.Helper()
	doc, err := source.Parse(name+".go", []byte(src))
	require.NoError(t, err)
	cm, ok := doc.FindClass(name)
	require.True(t, ok)
	return cm
}

// squash collapses whitespace runs so assertions survive gofmt's struct
// field alignment.
func squash(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func propertyNames(cols []*schema.Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}

func TestComputePatch(t *testing.T) {
	cm := parseClass(t, driftedUser, "User")
	patch := ComputePatch(cm, usersTable(t))

	assert.Equal(t, []string{"email"}, propertyNames(patch.Adds))
	assert.Equal(t, []string{"LegacyCode"}, patch.Removes)

	require.Len(t, patch.Updates, 1, "only the nullability drift is an update")
	assert.Equal(t, "Name", patch.Updates[0].Property)
	assert.Equal(t, "*string", patch.Updates[0].GoType)
}

func TestComputePatch_EnumException(t *testing.T) {
	cm := parseClass(t, driftedUser, "User")
	patch := ComputePatch(cm, usersTable(t))

	for _, up := range patch.Updates {
		assert.NotEqual(t, "Status", up.Property,
			"identifier type over an integer column is intentional enum modeling")
	}
}

func TestComputePatch_OptOutUntouched(t *testing.T) {
	src := `package models

type User struct {
	Id     int32
	Secret bool ` + "`minfold:\"-\"`" + `
}
`
	tbl := schema.NewTable("users")
	require.True(t, tbl.AddColumn(&schema.Column{Name: "id", Ordinal: 1, Type: schema.TypeInt, Identity: true}))
	require.True(t, tbl.AddColumn(&schema.Column{Name: "secret", Ordinal: 2, Type: schema.TypeText}))

	cm := parseClass(t, src, "User")
	patch := ComputePatch(cm, tbl)

	assert.Empty(t, patch.Adds, "an opted-out property still accounts for its column")
	assert.Empty(t, patch.Updates)
	assert.Empty(t, patch.Removes)
	assert.True(t, patch.Empty())
}

func TestComputePatch_SnakeCaseColumns(t *testing.T) {
	// The shape the generator itself emits: PascalCase fields over
	// snake_case columns. A clean class must produce an empty patch, not
	// re-add every multi-word column under a duplicate name.
	src := `package models

type User struct {
	Id        int32
	Name      *string
	Email     string
	Status    int16
	TeamId    int32
	ManagerId *int32
	CreatedAt time.Time
	// minfold:dynamic
}
`
	cm := parseClass(t, src, "User")
	patch := ComputePatch(cm, usersTable(t))

	assert.True(t, patch.Empty(), "adds=%v updates=%v removes=%v",
		propertyNames(patch.Adds), patch.Updates, patch.Removes)
}

func TestApplyPatch(t *testing.T) {
	cm := parseClass(t, driftedUser, "User")
	tbl := usersTable(t)
	patch := ComputePatch(cm, tbl)
	require.NoError(t, ApplyPatch(cm, patch))

	out, err := cm.Doc.Render()
	require.NoError(t, err)
	text := string(out)

	assert.Contains(t, squash(text), "Email string")
	assert.Contains(t, squash(text), "Name *string")
	assert.NotContains(t, text, "LegacyCode")
	assert.Contains(t, text, "`json:\"name\"`", "non-fk tags survive the type rewrite")
	assert.Contains(t, squash(text), "loaded bool", "members past the dynamic marker stay put")
	assert.True(t, cm.Doc.Dirty())
}

func TestApplyPatch_AddsBeforeBoundary(t *testing.T) {
	cm := parseClass(t, driftedUser, "User")
	tbl := usersTable(t)
	require.NoError(t, ApplyPatch(cm, ComputePatch(cm, tbl)))

	out, err := cm.Doc.Render()
	require.NoError(t, err)
	text := string(out)
	assert.Less(t, strings.Index(text, "Email"), strings.Index(text, source.BoundaryMarker))
}

func TestForeignKeyPatch(t *testing.T) {
	userCM := parseClass(t, driftedUser, "User")
	teamCM := parseClass(t, `package models

type Team struct {
	Id   int32
	Name string
}
`, "Team")

	tbl := usersTable(t)
	teams := schema.NewTable("teams")
	require.True(t, teams.AddColumn(&schema.Column{Name: "id", Ordinal: 1, Type: schema.TypeInt, Identity: true}))

	tcm := resolve.NewTableClassMap()
	require.True(t, tcm.TryInsert(tbl, userCM))
	require.True(t, tcm.TryInsert(teams, teamCM))

	patch := ComputeForeignKeyPatch(userCM, tbl, tcm)

	assert.Equal(t, []string{"Team.Id"}, patch["TeamId"], "stale annotation is replaced, not merged")
	assert.Equal(t, []string{"Id,noenforce"}, patch["ManagerId"],
		"self-reference drops the class qualifier and carries the enforced flag")
	assert.Empty(t, patch["Name"], "columns without keys get an explicit empty set")

	require.NoError(t, ApplyForeignKeyPatch(userCM, patch))
	out, err := userCM.Doc.Render()
	require.NoError(t, err)
	assert.Contains(t, string(out), "`fk:\"Team.Id\"`")
	assert.Contains(t, string(out), "`fk:\"Id,noenforce\"`")
	assert.NotContains(t, string(out), "Squad")
}

func TestForeignKeyPatch_RawFallback(t *testing.T) {
	userCM := parseClass(t, driftedUser, "User")
	tbl := usersTable(t)

	tcm := resolve.NewTableClassMap()
	require.True(t, tcm.TryInsert(tbl, userCM))

	patch := ComputeForeignKeyPatch(userCM, tbl, tcm)
	assert.Equal(t, []string{"teams.id"}, patch["TeamId"],
		"unresolved target falls back to raw schema names")
}

func TestReconcileConstructors(t *testing.T) {
	cm := parseClass(t, driftedUser, "User")
	tbl := usersTable(t)
	require.NoError(t, ApplyPatch(cm, ComputePatch(cm, tbl)))
	require.NoError(t, ReconcileConstructors(cm, tbl))

	out, err := cm.Doc.Render()
	require.NoError(t, err)
	text := string(out)

	// Surviving parameters keep their prior relative order; email and status
	// are new and land last in ordinal order. LegacyCode is gone with its
	// column, created_at takes the generator default, id is identity.
	assert.Contains(t, text, "func NewUser(teamId int32, name *string, managerId *int32, email string, status UserStatus) *User {")
	assert.Contains(t, text, "m.CreatedAt = time.Now().UTC()")
	assert.NotContains(t, text, "legacyCode")
	assert.Contains(t, text, "func NewEmptyUser() *User {")
	assert.True(t, cm.Doc.HasImport("time"))
}

func TestReconcileConstructors_NoCallerColumns(t *testing.T) {
	src := `package models

type Counter struct {
	Id int64
}

func NewCounter(id int64) *Counter {
	m := &Counter{}
	m.Id = id
	return m
}
`
	tbl := schema.NewTable("counters")
	require.True(t, tbl.AddColumn(&schema.Column{Name: "id", Ordinal: 1, Type: schema.TypeBigInt, Identity: true}))

	cm := parseClass(t, src, "Counter")
	require.NoError(t, ReconcileConstructors(cm, tbl))

	out, err := cm.Doc.Render()
	require.NoError(t, err)
	assert.NotContains(t, string(out), "func NewCounter(")
	assert.Contains(t, string(out), "func NewEmptyCounter() *Counter {")
}

func TestReconcileConstructors_ReservedWordParam(t *testing.T) {
	src := `package models

type Event struct {
	Id   int32
	Type string
	Name string
	// minfold:dynamic
}

func NewEvent(name string, type_ string) *Event {
	m := &Event{}
	m.Name = name
	m.Type = type_
	return m
}
`
	tbl := schema.NewTable("events")
	require.True(t, tbl.AddColumn(&schema.Column{Name: "id", Ordinal: 1, Type: schema.TypeInt, Identity: true, PrimaryKey: true}))
	require.True(t, tbl.AddColumn(&schema.Column{Name: "type", Ordinal: 2, Type: schema.TypeText}))
	require.True(t, tbl.AddColumn(&schema.Column{Name: "name", Ordinal: 3, Type: schema.TypeText}))

	cm := parseClass(t, src, "Event")
	require.NoError(t, ReconcileConstructors(cm, tbl))

	out, err := cm.Doc.Render()
	require.NoError(t, err)
	assert.Contains(t, string(out), "func NewEvent(name string, type_ string) *Event {",
		"the keyword-renamed parameter keeps its prior rank")
}

func TestPipelineIdempotent(t *testing.T) {
	cm := parseClass(t, driftedUser, "User")
	tbl := usersTable(t)
	tcm := resolve.NewTableClassMap()
	require.True(t, tcm.TryInsert(tbl, cm))

	run := func(cm *source.ClassModel) {
		require.NoError(t, ApplyPatch(cm, ComputePatch(cm, tbl)))
		require.NoError(t, ApplyForeignKeyPatch(cm, ComputeForeignKeyPatch(cm, tbl, tcm)))
		require.NoError(t, ReconcileConstructors(cm, tbl))
	}

	run(cm)
	first, err := cm.Doc.Render()
	require.NoError(t, err)

	cm2 := parseClass(t, string(first), "User")
	tcm2 := resolve.NewTableClassMap()
	require.True(t, tcm2.TryInsert(tbl, cm2))
	require.NoError(t, ApplyPatch(cm2, ComputePatch(cm2, tbl)))
	require.NoError(t, ApplyForeignKeyPatch(cm2, ComputeForeignKeyPatch(cm2, tbl, tcm2)))
	require.NoError(t, ReconcileConstructors(cm2, tbl))

	assert.False(t, cm2.Doc.Dirty(), "a reconciled file must reconcile to itself")
}

// --- templates ---

func mustParseGo(t *testing.T, src []byte) {
	t.Helper()
	_, err := parser.ParseFile(token.NewFileSet(), "gen.go", src, parser.ParseComments)
	require.NoError(t, err, "generated source must parse:\n%s", src)
}

func TestRenderModel(t *testing.T) {
	out, err := RenderModel("models", "User", usersTable(t), true)
	require.NoError(t, err)
	mustParseGo(t, out)

	text := string(out)
	assert.True(t, strings.HasPrefix(text, GeneratedHeader))
	assert.Contains(t, text, "type User struct {")
	assert.Contains(t, squash(text), "CreatedAt time.Time")
	assert.Contains(t, text, `"time"`)
	assert.Contains(t, text, source.BoundaryMarker)
	assert.Contains(t, text, "func (m *User) EntityID() int64 {")

	out, err = RenderModel("models", "User", usersTable(t), false)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "EntityID")
}

func TestRenderWrapper(t *testing.T) {
	out, err := RenderWrapper("dao", "Users", "User", "example.com/app/models", "models", usersTable(t), true)
	require.NoError(t, err)
	mustParseGo(t, out)

	text := string(out)
	assert.Contains(t, text, "Crud[models.User]")
	assert.Contains(t, text, "func (d *Users) GetById(ctx context.Context, id int64) (*models.User, error) {")

	out, err = RenderWrapper("dao", "Users", "User", "example.com/app/models", "models", usersTable(t), false)
	require.NoError(t, err)
	mustParseGo(t, out)
	assert.NotContains(t, string(out), "GetById")
	assert.NotContains(t, string(out), `"context"`)
}

func TestRenderBase(t *testing.T) {
	out, err := RenderBase("dao")
	require.NoError(t, err)
	mustParseGo(t, out)
	assert.Contains(t, string(out), "type Crud[T any] struct {")
	assert.Contains(t, string(out), "func nameMatch(field, col string) bool {",
		"row scanning folds snake_case columns onto PascalCase fields")
}

func TestUpdateWrapper(t *testing.T) {
	src := `package dao

import (
	"context"

	"example.com/app/models"
)

// Users is the data-access handle for the users table.
type Users struct {
	Crud[models.Person]
}

func (d *Users) GetById(ctx context.Context, id int64) (*models.Person, error) {
	return d.ByIdentity(ctx, id)
}

// ActiveOnly is hand-written and must survive.
func (d *Users) ActiveOnly() {}
`
	doc, err := source.Parse("users.go", []byte(src))
	require.NoError(t, err)

	spec := WrapperSpec{
		WrapperName:  "Users",
		ClassName:    "User",
		ModelsImport: "example.com/app/models",
		ModelsPkg:    "models",
		GetById:      true,
	}
	require.NoError(t, UpdateWrapper(doc, spec))

	out, err := doc.Render()
	require.NoError(t, err)
	text := string(out)
	assert.Contains(t, text, "Crud[models.User]")
	assert.Contains(t, text, "(*models.User, error)")
	assert.NotContains(t, text, "models.Person")
	assert.Contains(t, text, "ActiveOnly")

	spec.GetById = false
	require.NoError(t, UpdateWrapper(doc, spec))
	out, err = doc.Render()
	require.NoError(t, err)
	assert.NotContains(t, string(out), "GetById")
}

func TestRebuildRegistry(t *testing.T) {
	skeleton, err := RenderRegistry("dao")
	require.NoError(t, err)

	entries := []RegistryEntry{
		{Wrapper: "Users", Table: "users", Identity: "id"},
		{Wrapper: "Teams", Table: "teams", Identity: "id"},
	}
	out, err := RebuildRegistry(skeleton, entries)
	require.NoError(t, err)
	mustParseGo(t, out)

	text := string(out)
	assert.Less(t, strings.Index(text, "Teams Teams"), strings.Index(text, "Users Users"),
		"entries are ordered for deterministic output")
	assert.Contains(t, text, `db.Users.Table = "users"`)
	assert.Contains(t, text, "func NewDb(conn *sql.DB) *Db {")

	// A second rebuild with fewer tables drops the missing handle.
	out, err = RebuildRegistry(out, entries[:1])
	require.NoError(t, err)
	assert.NotContains(t, string(out), "Teams")
	assert.Contains(t, string(out), "Users Users")
}

func TestRebuildRegistry_MissingMarker(t *testing.T) {
	_, err := RebuildRegistry([]byte("package dao\n"), nil)
	require.Error(t, err)
}

func TestKnownDefault(t *testing.T) {
	expr, ok := knownDefault(&schema.Column{Name: "created_at", Type: schema.TypeTimestampTZ})
	require.True(t, ok)
	assert.Equal(t, "time.Now().UTC()", expr)

	_, ok = knownDefault(&schema.Column{Name: "created_at", Type: schema.TypeText})
	assert.False(t, ok, "a text column named created_at is not a generator default")

	_, ok = knownDefault(&schema.Column{Name: "created_at", Type: schema.TypeTimestamp, Nullable: true})
	assert.False(t, ok)
}
