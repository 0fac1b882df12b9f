package schema_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sneldb/sneldb-sub000/internal/schema"
	"github.com/sneldb/sneldb-sub000/internal/xerrors"
)

func TestDefine_AssignsStableUID(t *testing.T) {
	r := schema.NewRegistry()
	uid, err := r.Define("order_created", 1, []schema.Field{
		{Name: "id", Kind: schema.FieldInt},
		{Name: "status", Kind: schema.FieldString},
	})
	require.NoError(t, err)
	require.NotEmpty(t, uid)

	got, err := r.GetUID("order_created")
	require.NoError(t, err)
	require.Equal(t, uid, got)
}

func TestDefine_SameVersionIncompatibleFields(t *testing.T) {
	r := schema.NewRegistry()
	_, err := r.Define("evt", 1, []schema.Field{{Name: "a", Kind: schema.FieldInt}})
	require.NoError(t, err)

	_, err = r.Define("evt", 1, []schema.Field{{Name: "a", Kind: schema.FieldString}})
	require.Error(t, err)
	var schemaErr *xerrors.SchemaError
	require.ErrorAs(t, err, &schemaErr)
}

func TestDefine_SameVersionCompatibleIsIdempotent(t *testing.T) {
	r := schema.NewRegistry()
	uid1, err := r.Define("evt", 1, []schema.Field{{Name: "a", Kind: schema.FieldInt}})
	require.NoError(t, err)

	uid2, err := r.Define("evt", 1, []schema.Field{{Name: "a", Kind: schema.FieldInt}})
	require.NoError(t, err)
	require.Equal(t, uid1, uid2)
}

func TestDefine_HigherVersionShadowsAndKeepsUID(t *testing.T) {
	r := schema.NewRegistry()
	uid1, err := r.Define("evt", 1, []schema.Field{{Name: "a", Kind: schema.FieldInt}})
	require.NoError(t, err)

	uid2, err := r.Define("evt", 2, []schema.Field{
		{Name: "a", Kind: schema.FieldInt},
		{Name: "b", Kind: schema.FieldString},
	})
	require.NoError(t, err)
	require.Equal(t, uid1, uid2)

	sc, err := r.GetSchema("evt")
	require.NoError(t, err)
	require.Equal(t, 2, sc.Version)
	require.Len(t, sc.Fields, 2)
}

func TestDefine_OlderVersionRejected(t *testing.T) {
	r := schema.NewRegistry()
	_, err := r.Define("evt", 2, []schema.Field{{Name: "a", Kind: schema.FieldInt}})
	require.NoError(t, err)

	_, err = r.Define("evt", 1, []schema.Field{{Name: "a", Kind: schema.FieldInt}})
	require.Error(t, err)
}

func TestDefine_EnumAppendOnlyAllowed(t *testing.T) {
	r := schema.NewRegistry()
	_, err := r.Define("evt", 1, []schema.Field{
		{Name: "plan", Kind: schema.FieldEnum, Variants: []string{"free", "pro"}},
	})
	require.NoError(t, err)

	_, err = r.Define("evt", 2, []schema.Field{
		{Name: "plan", Kind: schema.FieldEnum, Variants: []string{"free", "pro", "team"}},
	})
	require.NoError(t, err)
}

func TestDefine_EnumReorderRejected(t *testing.T) {
	r := schema.NewRegistry()
	_, err := r.Define("evt", 1, []schema.Field{
		{Name: "plan", Kind: schema.FieldEnum, Variants: []string{"free", "pro"}},
	})
	require.NoError(t, err)

	_, err = r.Define("evt", 2, []schema.Field{
		{Name: "plan", Kind: schema.FieldEnum, Variants: []string{"pro", "free"}},
	})
	require.Error(t, err)
}

func TestDefine_EnumRemovalRejected(t *testing.T) {
	r := schema.NewRegistry()
	_, err := r.Define("evt", 1, []schema.Field{
		{Name: "plan", Kind: schema.FieldEnum, Variants: []string{"free", "pro", "team"}},
	})
	require.NoError(t, err)

	_, err = r.Define("evt", 2, []schema.Field{
		{Name: "plan", Kind: schema.FieldEnum, Variants: []string{"free", "pro"}},
	})
	require.Error(t, err)
}

func TestGetUID_Undefined(t *testing.T) {
	r := schema.NewRegistry()
	_, err := r.GetUID("missing")
	require.Error(t, err)
}

func TestField_VariantIndex(t *testing.T) {
	f := schema.Field{Name: "plan", Kind: schema.FieldEnum, Variants: []string{"free", "pro"}}
	require.Equal(t, 0, f.VariantIndex("free"))
	require.Equal(t, 1, f.VariantIndex("pro"))
	require.Equal(t, -1, f.VariantIndex("team"))
}

func TestMarshalJSONLoadRegistryRoundTrip(t *testing.T) {
	r := schema.NewRegistry()
	uid, err := r.Define("evt", 1, []schema.Field{{Name: "id", Kind: schema.FieldInt}})
	require.NoError(t, err)

	raw, err := r.MarshalJSON()
	require.NoError(t, err)

	loaded, err := schema.LoadRegistry(raw)
	require.NoError(t, err)

	gotUID, err := loaded.GetUID("evt")
	require.NoError(t, err)
	require.Equal(t, uid, gotUID)

	sc, ok := loaded.GetSchemaByUID(uid)
	require.True(t, ok)
	require.Equal(t, "evt", sc.EventType)
}

func TestIterSchemas(t *testing.T) {
	r := schema.NewRegistry()
	_, err := r.Define("a", 1, []schema.Field{{Name: "x", Kind: schema.FieldInt}})
	require.NoError(t, err)
	_, err = r.Define("b", 1, []schema.Field{{Name: "y", Kind: schema.FieldString}})
	require.NoError(t, err)

	all := r.IterSchemas()
	require.Len(t, all, 2)
}
