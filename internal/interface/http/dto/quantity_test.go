package dto

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawQuantity_Unmarshal(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"数字", `{"quantity": 2}`, "2"},
		{"字符串", `{"quantity": " 3 "}`, "3"},
		{"小数", `{"quantity": 2.5}`, "2.5"},
		{"非数字字符串", `{"quantity": "abc"}`, "abc"},
		{"null", `{"quantity": null}`, ""},
		{"缺省", `{}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v struct {
				Quantity RawQuantity `json:"quantity"`
			}
			require.NoError(t, json.Unmarshal([]byte(tt.body), &v))
			assert.Equal(t, tt.want, v.Quantity.String())
		})
	}
}
