package validator

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/moamenhredeen/oasgate/internal/models"
)

var (
	intSchema   = &models.SchemaNode{Kind: models.KindInteger}
	arraySchema = &models.SchemaNode{Kind: models.KindArray, Items: intSchema}
	objSchema   = &models.SchemaNode{
		Kind:          models.KindObject,
		Properties:    map[string]*models.SchemaNode{"role": {Kind: models.KindString}, "age": intSchema},
		PropertyOrder: []string{"role", "age"},
	}
)

func TestDeserializePath(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		param models.ParameterSpec
		want  any
	}{
		{"simple primitive", "5", models.ParameterSpec{Name: "id", Style: "simple", Schema: intSchema}, int64(5)},
		{"simple array", "3,4,5", models.ParameterSpec{Name: "id", Style: "simple", Schema: arraySchema}, []any{int64(3), int64(4), int64(5)}},
		{"simple object", "role,admin,age,30", models.ParameterSpec{Name: "id", Style: "simple", Schema: objSchema}, map[string]any{"role": "admin", "age": int64(30)}},
		{"simple object explode", "role=admin,age=30", models.ParameterSpec{Name: "id", Style: "simple", Explode: true, Schema: objSchema}, map[string]any{"role": "admin", "age": int64(30)}},
		{"label primitive", ".5", models.ParameterSpec{Name: "id", Style: "label", Schema: intSchema}, int64(5)},
		{"label array", ".3,4", models.ParameterSpec{Name: "id", Style: "label", Schema: arraySchema}, []any{int64(3), int64(4)}},
		{"label array explode", ".3.4", models.ParameterSpec{Name: "id", Style: "label", Explode: true, Schema: arraySchema}, []any{int64(3), int64(4)}},
		{"matrix primitive", ";id=5", models.ParameterSpec{Name: "id", Style: "matrix", Schema: intSchema}, int64(5)},
		{"matrix array", ";id=3,4", models.ParameterSpec{Name: "id", Style: "matrix", Schema: arraySchema}, []any{int64(3), int64(4)}},
		{"matrix array explode", ";id=3;id=4", models.ParameterSpec{Name: "id", Style: "matrix", Explode: true, Schema: arraySchema}, []any{int64(3), int64(4)}},
		{"uncoercible", "abc", models.ParameterSpec{Name: "id", Style: "simple", Schema: intSchema}, "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, deserializePath(tt.raw, &tt.param))
		})
	}
}

func TestDeserializeQuery(t *testing.T) {
	tests := []struct {
		name  string
		query string
		param models.ParameterSpec
		want  any
		found bool
	}{
		{"form exploded array", "id=3&id=4", models.ParameterSpec{Name: "id", Style: "form", Explode: true, Schema: arraySchema}, []any{int64(3), int64(4)}, true},
		{"form array", "id=3,4", models.ParameterSpec{Name: "id", Style: "form", Schema: arraySchema}, []any{int64(3), int64(4)}, true},
		{"space delimited", "id=3%204", models.ParameterSpec{Name: "id", Style: "spaceDelimited", Schema: arraySchema}, []any{int64(3), int64(4)}, true},
		{"pipe delimited", "id=3|4", models.ParameterSpec{Name: "id", Style: "pipeDelimited", Schema: arraySchema}, []any{int64(3), int64(4)}, true},
		{"deep object", "filter[role]=admin&filter[age]=30", models.ParameterSpec{Name: "filter", Style: "deepObject", Schema: objSchema}, map[string]any{"role": "admin", "age": int64(30)}, true},
		{"exploded form object", "role=admin&age=30&other=1", models.ParameterSpec{Name: "filter", Style: "form", Explode: true, Schema: objSchema}, map[string]any{"role": "admin", "age": int64(30)}, true},
		{"form object", "filter=role,admin", models.ParameterSpec{Name: "filter", Style: "form", Schema: objSchema}, map[string]any{"role": "admin"}, true},
		{"absent", "other=1", models.ParameterSpec{Name: "id", Style: "form", Schema: intSchema}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, err := url.ParseQuery(tt.query)
			assert.NoError(t, err)
			got, found := deserializeQuery(query, &tt.param)
			assert.Equal(t, tt.found, found)
			if tt.found {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestCoerce(t *testing.T) {
	assert.Equal(t, int64(-3), coerce("-3", intSchema))
	assert.Equal(t, 2.5, coerce("2.5", &models.SchemaNode{Kind: models.KindNumber}))
	assert.Equal(t, true, coerce("true", &models.SchemaNode{Kind: models.KindBoolean}))
	assert.Equal(t, "yes", coerce("yes", &models.SchemaNode{Kind: models.KindBoolean}))
	assert.Equal(t, "x", coerce("x", nil))
}
