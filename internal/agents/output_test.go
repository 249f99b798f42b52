package agents

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	c "github.com/mtzanidakis/counterman/internal/conversation"
	"github.com/mtzanidakis/counterman/internal/llm"
)

func decode(t *testing.T, raw string, out Output) error {
	t.Helper()
	return llm.Decode(&llm.Result{Structured: json.RawMessage(raw)}, out)
}

func TestOutputValidation(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		out  Output
		ok   bool
	}{
		{"repair ok", `{"provided_model_number":false,"info_needed":null}`, &RepairInfo{}, true},
		{"repair missing flag", `{"list_of_parts":["x"]}`, &RepairInfo{}, false},
		{"validation bad found_item", `{"is_valid_or_compatible":true,"found_item":"serial"}`, &ValidationInfo{}, false},
		{"validation null found_item", `{"is_valid_or_compatible":false,"found_item":null}`, &ValidationInfo{}, true},
		{"summary needs text", `{"current_state":"start"}`, &MessageSummary{}, false},
		{"blog ok", `{"search_query":"door seal","found_articles":[]}`, &BlogInfo{}, true},
		{"product needs name", `{"products":[{"part_number":"1"}]}`, &ProductList{}, false},
		{"product bad image", `{"found_products":[{"name":"Pump","image_url":"pump.png"}]}`, &ProductInfo{}, false},
		{"store out of range", `{"found_stores":[{"name":"Austin","latitude":120}]}`, &StoreList{}, false},
		{"store ok", `{"found_stores":[{"name":"Austin","latitude":30.2,"longitude":-97.7}]}`, &StoreInfo{}, true},
		{"response needs data", `{}`, &Response{}, false},
		{"final needs message", `{"message":""}`, &FinalAnswer{}, false},
		{"final ok", `{"message":"Hi","output_image":null}`, &FinalAnswer{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := decode(t, tt.raw, tt.out)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, llm.ErrSchemaMismatch)
			}
		})
	}
}

func TestInfoNeeded(t *testing.T) {
	var b BlogInfo
	require.NoError(t, decode(t, `{"search_query":"","found_articles":[],"info_needed":{"target_agent":"human_interaction","request_info":"which appliance?"}}`, &b))
	req := b.InfoNeeded()
	require.NotNil(t, req)
	assert.Equal(t, c.HumanInteraction, req.TargetAgent)

	var r RepairInfo
	require.NoError(t, decode(t, `{"provided_model_number":true,"info_needed":{}}`, &r))
	assert.Nil(t, r.InfoNeeded(), "an empty request is no request")

	assert.Nil(t, (&MessageSummary{}).InfoNeeded())
}

func TestSchemasNameRequiredFields(t *testing.T) {
	for _, o := range []Output{&RepairInfo{}, &ValidationInfo{}, &MessageSummary{}, &BlogInfo{}, &ProductList{}, &ProductInfo{}, &StoreList{}, &StoreInfo{}, &Response{}, &FinalAnswer{}} {
		s := o.Schema()
		assert.Equal(t, "object", s["type"], o.Kind())
		assert.NotEmpty(t, s["required"], o.Kind())
		spec := Spec(o)
		assert.Equal(t, o.Kind(), spec.Name)
	}
}
