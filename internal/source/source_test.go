package source

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lofcz/minfold/internal/schema"
)

const sampleModel = `package models

import "time"

// User is generated from the users table.
type User struct {
	Id        int32
	Name      string ` + "`json:\"name\" fk:\"Team.Id\"`" + `
	ManagerId *int32 ` + "`fk:\"Id\"`" + `
	Status    UserStatus
	Internal  string ` + "`minfold:\"-\"`" + `
	// minfold:dynamic
	Cached *time.Time
}

// NewUser builds a User from caller-supplied values.
func NewUser(name string, managerId *int32) *User {
	u := &User{}
	u.Name = name
	u.ManagerId = managerId
	return u
}

// helper the generator does not own
func trim(s string) string { return strings.TrimSpace(s) }
`

func parseSample(t *testing.T) *Document {
	t.Helper()
	doc, err := Parse("user.go", []byte(sampleModel))
	require.NoError(t, err)
	return doc
}

func TestFindClass(t *testing.T) {
	doc := parseSample(t)

	cm, ok := doc.FindClass("User")
	require.True(t, ok)
	assert.Equal(t, "User", cm.Name)

	_, ok = doc.FindClass("Order")
	assert.False(t, ok, "edits against a missing class must be a no-op")
}

func TestClassModel_Properties(t *testing.T) {
	doc := parseSample(t)
	cm, ok := doc.FindClass("User")
	require.True(t, ok)

	id, ok := cm.Property("id")
	require.True(t, ok, "lookup is case-insensitive")
	assert.True(t, id.Mapped)
	assert.Equal(t, schema.TypeInt, id.Type)
	assert.False(t, id.Nullable)

	mgr, ok := cm.Property("ManagerId")
	require.True(t, ok)
	assert.True(t, mgr.Nullable)
	assert.Equal(t, []string{"Id"}, mgr.FKTags())

	status, ok := cm.Property("Status")
	require.True(t, ok)
	assert.True(t, status.Identifier, "named non-builtin type is an identifier type")
	assert.True(t, status.Mapped)

	internal, ok := cm.Property("Internal")
	require.True(t, ok)
	assert.False(t, internal.Mapped, "minfold:\"-\" opts the field out")

	cached, ok := cm.Property("Cached")
	require.True(t, ok)
	assert.False(t, cached.Mapped, "fields after the dynamic boundary are untouchable")
}

func TestAddRemoveProperty(t *testing.T) {
	doc := parseSample(t)
	cm, _ := doc.FindClass("User")

	require.NoError(t, cm.AddProperty("Email", "*string", ""))
	email, ok := cm.Property("Email")
	require.True(t, ok)
	assert.True(t, email.Mapped)
	assert.True(t, doc.Dirty())

	out, err := doc.Render()
	require.NoError(t, err)
	text := string(out)

	// The new field lands before the dynamic boundary.
	assert.Less(t, strings.Index(text, "Email"), strings.Index(text, BoundaryMarker))

	require.True(t, cm.RemoveProperty("Email"))
	_, ok = cm.Property("Email")
	assert.False(t, ok)
}

func TestRemoveProperty_DocCommentGoesToo(t *testing.T) {
	src := `package models

type User struct {
	Id int32
	// LegacyCode predates the schema migration.
	LegacyCode string
	Name       string
}
`
	doc, err := Parse("user.go", []byte(src))
	require.NoError(t, err)
	cm, ok := doc.FindClass("User")
	require.True(t, ok)

	require.True(t, cm.RemoveProperty("LegacyCode"))

	out, err := doc.Render()
	require.NoError(t, err)
	assert.NotContains(t, string(out), "LegacyCode")
	assert.NotContains(t, string(out), "schema migration",
		"the field's doc comment must not survive as a stray")
}

func TestSetPropertyTypeAndTags(t *testing.T) {
	doc := parseSample(t)
	cm, _ := doc.FindClass("User")

	require.NoError(t, cm.SetPropertyType("Name", "*string"))
	name, _ := cm.Property("Name")
	assert.Equal(t, "*string", name.GoType)
	assert.True(t, name.Nullable)

	// Replacing fk entries keeps the user's json tag.
	tags := ReplaceTagKey(name.Tags, TagFK, []string{"Team.TeamId"})
	require.NoError(t, cm.SetPropertyTags("Name", tags))
	name, _ = cm.Property("Name")
	assert.Equal(t, []string{"Team.TeamId"}, name.FKTags())
	v, ok := TagValue(name.Tags, "json")
	require.True(t, ok)
	assert.Equal(t, "name", v)
}

func TestRoundTrip_UntouchedMembers(t *testing.T) {
	doc := parseSample(t)
	cm, _ := doc.FindClass("User")

	require.NoError(t, cm.AddProperty("Email", "string", ""))

	out, err := doc.Render()
	require.NoError(t, err)
	text := string(out)

	// Hand-authored members survive the edit in relative order.
	assert.Contains(t, text, "func trim(s string) string")
	assert.Contains(t, text, "// helper the generator does not own")
	assert.Contains(t, text, "// NewUser builds a User from caller-supplied values.")
	assert.Less(t, strings.Index(text, "func NewUser"), strings.Index(text, "func trim"))
}

func TestCleanDocumentIsNotDirty(t *testing.T) {
	doc := parseSample(t)
	_, _ = doc.FindClass("User")
	assert.False(t, doc.Dirty(), "reads must never mark the document dirty")
}

func TestReplaceOrAppendFunc(t *testing.T) {
	doc := parseSample(t)

	err := doc.ReplaceOrAppendFunc(`
// NewUser builds a User from caller-supplied values.
func NewUser(name string) *User {
	u := &User{}
	u.Name = name
	return u
}`, "")
	require.NoError(t, err)

	out, err := doc.Render()
	require.NoError(t, err)
	text := string(out)
	assert.Equal(t, 1, strings.Count(text, "func NewUser"), "replacement must not duplicate")
	assert.NotContains(t, text, "managerId")

	require.NoError(t, doc.ReplaceOrAppendFunc(`
func NewEmptyUser() *User {
	return &User{}
}`, "User"))
	out, err = doc.Render()
	require.NoError(t, err)
	text = string(out)
	assert.Contains(t, text, "func NewEmptyUser")
	assert.Less(t, strings.Index(text, "type User struct"), strings.Index(text, "func NewEmptyUser"))
	assert.Less(t, strings.Index(text, "func NewEmptyUser"), strings.Index(text, "func NewUser"))
}

func TestRemoveFunc(t *testing.T) {
	doc := parseSample(t)

	require.True(t, doc.RemoveFunc("NewUser"))
	assert.False(t, doc.RemoveFunc("NewUser"))

	out, err := doc.Render()
	require.NoError(t, err)
	text := string(out)
	assert.NotContains(t, text, "func NewUser(")
	assert.NotContains(t, text, "// NewUser builds", "comments of removed members go with them")
}

func TestEnsureImport(t *testing.T) {
	doc := parseSample(t)

	doc.EnsureImport("time")
	assert.Len(t, doc.Imports(), 1, "existing imports are not duplicated")

	doc.EnsureImport("encoding/json")
	assert.True(t, doc.HasImport("encoding/json"))

	out, err := doc.Render()
	require.NoError(t, err)
	assert.Contains(t, string(out), `"encoding/json"`)
}

func TestParamName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Name", "name"},
		{"ManagerId", "managerId"},
		{"Type", "type_"},
		{"Len", "len_"},
		{"URL", "uRL"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParamName(tt.in))
	}
}

func TestToPascalCase(t *testing.T) {
	assert.Equal(t, "ManagerId", ToPascalCase("manager_id"))
	assert.Equal(t, "Users", ToPascalCase("users"))
	assert.Equal(t, "OrderLineItem", ToPascalCase("order_line_item"))
}

func TestNamesEqual(t *testing.T) {
	assert.True(t, NamesEqual("TeamId", "team_id"))
	assert.True(t, NamesEqual("team_id", "TeamId"))
	assert.True(t, NamesEqual("Id", "id"))
	assert.True(t, NamesEqual("CreatedAt", "created_at"))
	assert.False(t, NamesEqual("TeamId", "team"))
	assert.False(t, NamesEqual("Name", "email"))
}

func TestProperty_LookupByColumnName(t *testing.T) {
	doc := parseSample(t)
	cm, ok := doc.FindClass("User")
	require.True(t, ok)

	prop, ok := cm.Property("manager_id")
	require.True(t, ok, "snake_case column must find its PascalCase field")
	assert.Equal(t, "ManagerId", prop.Name)
}
